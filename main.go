package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/lookbusy1344/vasmgo/aof"
	"github.com/lookbusy1344/vasmgo/asmcore"
	"github.com/lookbusy1344/vasmgo/config"
	"github.com/lookbusy1344/vasmgo/edtasm"
	"github.com/lookbusy1344/vasmgo/incres"
	"github.com/lookbusy1344/vasmgo/merlin"
	"github.com/lookbusy1344/vasmgo/scasm"
	"github.com/lookbusy1344/vasmgo/trscmd"
)

// Version information - can be overridden at build time with:
// go build -ldflags "-X main.Version=v1.2.3"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// includeDirs implements flag.Value so -I can be repeated (§6 CLI surface).
type includeDirs []string

func (d *includeDirs) String() string { return strings.Join(*d, ",") }
func (d *includeDirs) Set(v string) error {
	*d = append(*d, v)
	return nil
}

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")
		verboseMode = flag.Bool("verbose", false, "Verbose output")

		dialectName = flag.String("dialect", "", "Source dialect: edtasm, merlin, scasm (default: from config, else edtasm)")
		formatName  = flag.String("format", "", "Output format: aof, cmd (default: from config, else aof)")
		outPath     = flag.String("o", "", "Output file path (default: <input>.aof or .cmd)")
		configPath  = flag.String("config", "", "Path to a .vasmrc.toml config file (default: platform config dir)")

		// §6 universal parser options
		nocase     = flag.Bool("nocase", false, "Case-insensitive symbols")
		dotdir     = flag.Bool("dotdir", false, "Require a leading dot on directive names")
		autoexp    = flag.Bool("autoexp", false, "Enable autoexpand (SCASM; no-op for Merlin)")
		orgFlag    = flag.String("org", "", "Default origin (hex or decimal, e.g. 0x8000)")
		igntrail   = flag.Bool("i", false, "Ignore trailing whitespace/garbage after an operand")
		noc        = flag.Bool("noc", false, "Disable C-style number prefixes (0x, 0b)")
		noi        = flag.Bool("noi", false, "Disable Intel numeric suffixes (h, o, q, d, b)")
		astDump    = flag.Bool("ast", false, "Emit a debug atom-stream dump to stderr")
		ldots      = flag.Bool("ldots", false, "Require leading dot on directives (SCASM compatibility)")
		sectFlag   = flag.Bool("sect", false, "Enable the SECTION directive")

		// /CMD writer
		execSym = flag.String("exec", "", "Entry symbol for the /CMD writer's transfer block")

		dumpSymbols = flag.Bool("dump-symbols", false, "Dump the symbol table and exit")
		symbolsFile = flag.String("symbols-file", "", "Symbol dump output file (default: stdout)")
	)

	var includes includeDirs
	flag.Var(&includes, "I", "Add a directory to the include search path (repeatable)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("vasmgo %s\n", Version)
		if Commit != "unknown" {
			fmt.Printf("Commit: %s\n", Commit)
		}
		if Date != "unknown" {
			fmt.Printf("Built: %s\n", Date)
		}
		os.Exit(0)
	}

	if *showHelp || flag.NArg() == 0 {
		printHelp()
		if *showHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	asmFile := flag.Arg(0)
	if _, err := os.Stat(asmFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: file not found: %s\n", asmFile)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	dialect := cfg.Dialect.Name
	if *dialectName != "" {
		dialect = *dialectName
	}
	format := cfg.Output.Format
	if *formatName != "" {
		format = *formatName
	}
	exec := cfg.Output.Exec
	if *execSym != "" {
		exec = *execSym
	}
	defaultOrg := uint32(cfg.Output.DefaultOrg)
	if *orgFlag != "" {
		v, err := strconv.ParseUint(strings.TrimPrefix(*orgFlag, "0x"), hexOrDec(*orgFlag), 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -org value %q: %v\n", *orgFlag, err)
			os.Exit(1)
		}
		defaultOrg = uint32(v)
	}

	opts := asmcore.Options{
		NoCase:       *nocase || cfg.Dialect.NoCase,
		DotDirs:      *dotdir || cfg.Dialect.DotDirs,
		AutoExpand:   *autoexp || cfg.Dialect.AutoExpand,
		DefaultOrg:   defaultOrg,
		IgnTrail:     *igntrail || cfg.Dialect.IgnTrail,
		NoC:          *noc || cfg.Dialect.NoC,
		NoI:          *noi || cfg.Dialect.NoI,
		AST:          *astDump || cfg.Output.AST,
		LDots:        *ldots || cfg.Dialect.LDots,
		Sect:         *sectFlag || cfg.Dialect.Sect,
		ExecSymbol:   exec,
		IncludePaths: append(append([]string{}, cfg.Include.Paths...), includes...),
	}

	parserDialect, err := selectDialect(dialect)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	resolver := incres.New(opts.IncludePaths)
	lines, err := resolver.ReadLines(asmFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := asmcore.NewParserContext(opts)
	parserDialect.Init(ctx)
	ctx.CurrentPos.Filename = asmFile

	if *verboseMode {
		fmt.Fprintf(os.Stderr, "Parsing %s as %s (%d lines)\n", asmFile, dialect, len(lines))
	}

	if err := parserDialect.Parse(ctx, lines); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, w := range ctx.Program.Errors.Warnings {
		fmt.Fprintln(os.Stderr, w.String())
	}
	for _, e := range ctx.Program.Errors.Errors {
		fmt.Fprintln(os.Stderr, e.Error())
	}

	if *astDump {
		dumpAtoms(ctx.Program)
	}

	if *dumpSymbols {
		if err := dumpSymbolTable(ctx.Program.Symbols, *symbolsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(ctx.Program.Errors.ExitCode())
	}

	if ctx.Program.Errors.HasErrors() {
		os.Exit(ctx.Program.Errors.ExitCode())
	}

	out := *outPath
	if out == "" {
		out = defaultOutputPath(asmFile, format)
	}

	data, err := writeObject(ctx.Program, format, opts.ExecSymbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(out, data, 0644); err != nil { // #nosec G306 -- object file output, not secret
		fmt.Fprintf(os.Stderr, "Error: failed to write %s: %v\n", out, err)
		os.Exit(1)
	}

	if *verboseMode {
		fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes, %d sections)\n", out, len(data), len(ctx.Program.Sections))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func hexOrDec(s string) int {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return 16
	}
	return 10
}

func selectDialect(name string) (asmcore.Parser, error) {
	switch strings.ToLower(name) {
	case "", "edtasm":
		return edtasm.New(), nil
	case "merlin":
		return merlin.New(), nil
	case "scasm":
		return scasm.New(), nil
	default:
		return nil, fmt.Errorf("unknown dialect %q (want edtasm, merlin, or scasm)", name)
	}
}

func defaultOutputPath(asmFile, format string) string {
	base := asmFile
	if i := strings.LastIndexByte(base, '.'); i > strings.LastIndexByte(base, '/') {
		base = base[:i]
	}
	switch strings.ToLower(format) {
	case "cmd":
		return base + ".cmd"
	default:
		return base + ".aof"
	}
}

func writeObject(prog *asmcore.Program, format, execSym string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "cmd":
		return trscmd.New(prog, execSym).Write()
	case "", "aof":
		return aof.New(prog).Write()
	default:
		return nil, fmt.Errorf("unknown output format %q (want aof or cmd)", format)
	}
}

// dumpAtoms implements the -ast debug flag: a plain per-section, per-atom
// listing to stderr. There is no listing-file pagination here (§1
// Non-goals excludes reproducing the host's listing pagination).
func dumpAtoms(prog *asmcore.Program) {
	for _, sec := range prog.Sections {
		fmt.Fprintf(os.Stderr, "; section %s  org=0x%X  pc=0x%X\n", sec.Name, sec.Org, sec.PC)
		for _, a := range sec.Atoms {
			fmt.Fprintf(os.Stderr, ";   %-12s align=%d %s\n", atomKindName(a.Kind), a.Align, a.Pos)
		}
	}
}

func atomKindName(k asmcore.AtomKind) string {
	switch k {
	case asmcore.AtomData:
		return "DATA"
	case asmcore.AtomSpace:
		return "SPACE"
	case asmcore.AtomDataDef:
		return "DATADEF"
	case asmcore.AtomLabel:
		return "LABEL"
	case asmcore.AtomInstruction:
		return "INSTRUCTION"
	case asmcore.AtomROffs:
		return "ROFFS"
	case asmcore.AtomAssert:
		return "ASSERT"
	case asmcore.AtomSrcLine:
		return "SRCLINE"
	case asmcore.AtomText:
		return "TEXT"
	case asmcore.AtomExprPrint:
		return "EXPR_PRINT"
	case asmcore.AtomVasmDebug:
		return "VASMDEBUG"
	default:
		return "?"
	}
}

// dumpSymbolTable outputs the symbol table in a readable format, grounded
// on the teacher's own dumpSymbolTable in its original main.go.
func dumpSymbolTable(st *asmcore.SymbolTable, filename string) error {
	var writer *os.File
	var err error

	if filename == "" {
		writer = os.Stdout
	} else {
		writer, err = os.Create(filename) // #nosec G304 -- user-specified symbol output path
		if err != nil {
			return fmt.Errorf("failed to create symbol file: %w", err)
		}
		defer func() {
			if cerr := writer.Close(); cerr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close symbol file: %v\n", cerr)
			}
		}()
	}

	all := st.All()
	if len(all) == 0 {
		_, _ = fmt.Fprintln(writer, "No symbols defined")
		return nil
	}

	_, _ = fmt.Fprintln(writer, "Symbol Table")
	_, _ = fmt.Fprintln(writer, "============")
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintf(writer, "%-30s %-12s %-10s %s\n", "Name", "Kind", "Value", "Status")
	_, _ = fmt.Fprintln(writer, strings.Repeat("-", 80))

	sort.Slice(all, func(i, j int) bool { return all[i].Value < all[j].Value })

	for _, sym := range all {
		var kind string
		switch sym.Kind {
		case asmcore.SymLabsym:
			kind = "Label"
		case asmcore.SymImport:
			kind = "Import"
		case asmcore.SymExpression:
			kind = "Expression"
		default:
			kind = "Unknown"
		}

		status := "Defined"
		if !sym.Defined {
			status = "Undefined"
		}

		_, _ = fmt.Fprintf(writer, "%-30s %-12s 0x%08X %s\n", sym.Name, kind, sym.Value, status)
	}

	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintf(writer, "Total symbols: %d\n", len(all))

	return nil
}

func printHelp() {
	fmt.Printf(`vasmgo %s

A multi-dialect cross-assembler front end: EDTASM (ARM/Acorn), Merlin and
SCASM (6502/65816), emitting AOF (ARM) or TRS-DOS /CMD object files.

Usage: vasmgo [options] <source-file>

Options:
  -help                Show this help message
  -version             Show version information
  -verbose             Enable verbose output
  -dialect NAME        Source dialect: edtasm, merlin, scasm (default: edtasm)
  -format NAME         Output format: aof, cmd (default: aof)
  -o FILE              Output file path (default: <input>.aof or .cmd)
  -config FILE         Path to a .vasmrc.toml config file
  -I DIR               Add a directory to the include search path (repeatable)

Dialect options (§6):
  -nocase              Case-insensitive symbols
  -dotdir              Require a leading dot on directive names
  -autoexp              Enable autoexpand (SCASM only)
  -org ADDR             Default origin (hex or decimal, e.g. 0x8000)
  -i                    Ignore trailing garbage after an operand
  -noc                  Disable C-style number prefixes
  -noi                  Disable Intel numeric suffixes
  -ast                  Emit a debug atom-stream dump to stderr
  -ldots                Require leading dot on directives (SCASM compatibility)
  -sect                 Enable the SECTION directive

/CMD writer:
  -exec SYM             Entry symbol for the transfer block

Symbol dump:
  -dump-symbols         Dump the symbol table and exit
  -symbols-file FILE    Symbol dump output file (default: stdout)

Examples:
  vasmgo -dialect edtasm -format aof hello.s
  vasmgo -dialect merlin -format aof -nocase game.s
  vasmgo -dialect scasm -format cmd -exec START program.s

For more information, see the README.md file.
`, Version)
}
