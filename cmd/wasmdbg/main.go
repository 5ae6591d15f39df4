package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-debugger/dbgsvc"
	"github.com/wippyai/wasm-debugger/debugger"
)

// breakpointScript is the YAML file format for preloading breakpoints.
type breakpointScript struct {
	Breakpoints []struct {
		Func  uint32 `yaml:"func"`
		Instr uint32 `yaml:"instr"`
	} `yaml:"breakpoints"`
}

func main() {
	var (
		moduleFile  = flag.String("module", "", "Path to .wasm or .wat module")
		bpFile      = flag.String("breakpoints", "", "YAML file with breakpoints to set before running")
		configFile  = flag.String("config", "", "Config file (yaml/toml/json)")
		trace       = flag.Bool("trace", false, "Single-step to completion, printing each position")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *moduleFile == "" {
		*moduleFile = cfg.GetString("module")
	}
	if *bpFile == "" {
		*bpFile = cfg.GetString("breakpoints")
	}

	if *moduleFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasmdbg -module <file.wasm|file.wat> [-breakpoints bp.yaml] [-trace]")
		fmt.Fprintln(os.Stderr, "       wasmdbg -module <file.wasm|file.wat> -i  (interactive mode)")
		os.Exit(1)
	}

	log, err := newLogger(*verbose || cfg.GetBool("verbose"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sess := debugger.New(log)
	svc := dbgsvc.New(sess, log)
	svc.SetHostExecutor(consoleExecutor{})

	if reply := svc.LoadModule(*moduleFile); reply.Status != dbgsvc.StatusOK {
		fmt.Fprintf(os.Stderr, "Error: %s\n", reply.ErrorReason)
		os.Exit(1)
	}
	if *bpFile != "" {
		if err := loadBreakpoints(svc, *bpFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(svc, *moduleFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runBatch(svc, *trace, cfg.GetInt("max_steps")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("max_steps", 1_000_000)
	v.SetEnvPrefix("WASMDBG")
	v.AutomaticEnv()
	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func loadBreakpoints(svc *dbgsvc.Service, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read breakpoints: %w", err)
	}
	var script breakpointScript
	if err := yaml.Unmarshal(data, &script); err != nil {
		return fmt.Errorf("parse breakpoints: %w", err)
	}
	for _, bp := range script.Breakpoints {
		reply := svc.AddBreakpoint(bp.Func, bp.Instr)
		fmt.Printf("Breakpoint %d at func %d instr %d\n", reply.Index, bp.Func, bp.Instr)
	}
	return nil
}

// runBatch runs the module without a TUI: continue across breakpoints,
// or single-step with -trace, printing positions as they pause.
func runBatch(svc *dbgsvc.Service, trace bool, maxSteps int) error {
	mode := debugger.ModeStart
	if trace {
		mode = debugger.ModeStep
	}

	for steps := 0; steps < maxSteps; steps++ {
		reply := svc.RunCode(mode)
		switch reply.Status {
		case dbgsvc.StatusFinish:
			fmt.Println("Execution finished")
			return nil
		case dbgsvc.StatusNOK:
			return fmt.Errorf("%s", reply.ErrorReason)
		}

		printPosition(svc)
		if trace {
			mode = debugger.ModeStep
		} else {
			mode = debugger.ModeContinue
		}
	}
	return fmt.Errorf("stopped after %d steps without finishing", maxSteps)
}

func printPosition(svc *dbgsvc.Service) {
	cs := svc.GetCallStack()
	if cs.Status != dbgsvc.StatusOK || len(cs.Stack) == 0 {
		return
	}
	top := cs.Stack[0]
	name := top.FuncName
	if name == "" {
		name = fmt.Sprintf("func[%d]", top.FuncIndex)
	}
	fmt.Printf("at %s instr %d (depth %d)\n", name, top.InstrIndex, len(cs.Stack))
}

// consoleExecutor answers import calls from the terminal: void imports
// complete silently, value-returning imports read an i32 from stdin.
type consoleExecutor struct{}

func (consoleExecutor) RunImportFunction(req *dbgsvc.ImportRequest) (*dbgsvc.ImportReply, error) {
	fmt.Printf("import call %s.%s(", req.Module, req.Name)
	for i, arg := range req.Args {
		if i > 0 {
			fmt.Print(", ")
		}
		fmt.Print(arg.Display)
	}
	fmt.Println(")")

	if req.ResultType == "" {
		return &dbgsvc.ImportReply{}, nil
	}
	fmt.Printf("return value (%s): ", req.ResultType)
	var n int64
	if _, err := fmt.Scanln(&n); err != nil {
		return nil, fmt.Errorf("read return value: %w", err)
	}
	ret := valueForType(req.ResultType, n)
	return &dbgsvc.ImportReply{Return: &ret}, nil
}

func valueForType(typ string, n int64) dbgsvc.ValuePayload {
	switch typ {
	case "i64":
		return dbgsvc.ValuePayload{Type: "i64", Bits: uint64(n)}
	default:
		return dbgsvc.ValuePayload{Type: "i32", Bits: uint64(uint32(int32(n)))}
	}
}
