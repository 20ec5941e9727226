package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"

	"github.com/davidthor/pypes/pkg/analyzer"
	"github.com/davidthor/pypes/pkg/errors"
	"github.com/davidthor/pypes/pkg/fetcher"
	"github.com/davidthor/pypes/pkg/runtime"
	"github.com/davidthor/pypes/pkg/runtime/wazeroengine"
	"github.com/davidthor/pypes/pkg/schema/blueprint"
	"github.com/davidthor/pypes/pkg/values"
	"github.com/davidthor/pypes/pkg/wiring"
	"github.com/davidthor/pypes/pkg/wit"
	"github.com/davidthor/pypes/pkg/workflow"
)

// run sequences the gate: load blueprint, analyze, fetch, link, execute.
func run(ctx context.Context) error {
	logger := newLogger(viper.GetBool("verbose"))
	defer logger.Sync() //nolint:errcheck

	fmt.Fprintf(os.Stderr, "Loading blueprint from %s...\n", cfgFile)
	bp, err := blueprint.NewLoader().Load(cfgFile)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "Running pypes static analysis...")
	violations := analyzer.New().Verify(bp)
	if len(violations) == 0 {
		fmt.Fprintln(os.Stderr, "VERIFICATION PASSED")
	} else {
		fmt.Fprintln(os.Stderr, "SAFETY VIOLATION(S) DETECTED")
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "  [%s] in component '%s': %s\n", v.Kind, v.Component, v.Detail)
		}
		if !allowUnsafe {
			fmt.Fprintln(os.Stderr, "Execution blocked. Use --allow-unsafe to override.")
			return errors.New(errors.ErrCodeSafetyViolation,
				fmt.Sprintf("%d safety violation(s)", len(violations)))
		}
		fmt.Fprintln(os.Stderr, "Proceeding despite violations (--allow-unsafe active).")
	}

	if verifyOnly {
		return nil
	}

	viper.SetDefault("fetch_retries", 2)
	f, err := fetcher.New(fetcher.Options{
		CacheDir:    viper.GetString("cache_dir"),
		UserAgent:   UserAgent(),
		HTTPTimeout: viper.GetDuration("http_timeout"),
		Retries:     uint64(viper.GetInt("fetch_retries")),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	engine, err := wazeroengine.New(ctx, logger)
	if err != nil {
		return err
	}
	defer engine.Close(ctx) //nolint:errcheck

	baseDir := filepath.Dir(cfgFile)
	descriptors := make(map[string]*wit.Package, len(bp.Components))

	for _, name := range sortedComponentNames(bp) {
		locator := bp.Components[name]
		path, err := f.Resolve(baseDir, locator)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, " - Loading component '%s' from %s\n", name, path)

		descriptor := loadDescriptor(path, logger)
		descriptors[name] = descriptor

		if err := engine.Load(ctx, name, path, descriptor); err != nil {
			return err
		}
	}

	instances, pending := wiring.New(engine, descriptors, logger).Wire(ctx, bp)
	if len(pending) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: components never instantiated: %s\n", strings.Join(pending, ", "))
	}

	if bp.Workflow != nil {
		fmt.Fprintln(os.Stderr, "Starting declarative workflow execution...")
		if _, err := workflow.New(logger).Execute(ctx, bp.Workflow, instances); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Workflow complete.")
		return nil
	}

	return callEntrypoint(ctx, instances, entrypoint)
}

// loadDescriptor discovers the interface description for a component: a
// .wit file next to the module, then interface.wit in the same directory
// (the cache layout). Missing descriptors degrade wiring to root exports.
func loadDescriptor(componentPath string, logger *zap.Logger) *wit.Package {
	candidates := []string{
		strings.TrimSuffix(componentPath, filepath.Ext(componentPath)) + ".wit",
		filepath.Join(filepath.Dir(componentPath), "interface.wit"),
	}
	for _, candidate := range candidates {
		pkg, err := wit.Load(candidate)
		if err == nil {
			return pkg
		}
		if !errors.Is(err, errors.ErrCodeDescriptorMissing) {
			logger.Warn("unreadable interface descriptor",
				zap.String("path", candidate), zap.Error(err))
		}
	}
	logger.Warn("no interface descriptor found; wiring limited to root exports",
		zap.String("component", componentPath))
	return nil
}

// callEntrypoint invokes the entry component's 'run' export, tolerating
// the () -> string, (string) -> string, and () -> () signatures.
func callEntrypoint(ctx context.Context, instances map[string]runtime.Instance, name string) error {
	inst, ok := instances[name]
	if !ok {
		return errors.New(errors.ErrCodeInstantiationFailed,
			fmt.Sprintf("entrypoint component %q not instantiated", name))
	}

	fn, ok := inst.Func("", "run")
	if !ok {
		return errors.New(errors.ErrCodeFunctionNotFound,
			fmt.Sprintf("entrypoint component %q has no 'run' export", name))
	}

	fmt.Fprintf(os.Stderr, "Running entrypoint '%s'...\n", name)

	sig := fn.Signature()
	var results []cty.Value
	var err error
	switch {
	case sig.Known && len(sig.Params) == 0:
		results, err = fn.Call(ctx, nil)
	case sig.Known && len(sig.Params) == 1 && sig.Params[0].Type == cty.String:
		results, err = fn.Call(ctx, []cty.Value{cty.StringVal("Default Prompt")})
	case sig.Known:
		return errors.New(errors.ErrCodeUnsupportedArity,
			fmt.Sprintf("entrypoint %q: unsupported 'run' signature", name))
	default:
		// No descriptor: try nullary first, then the single-string form.
		results, err = fn.Call(ctx, nil)
		if err != nil {
			results, err = fn.Call(ctx, []cty.Value{cty.StringVal("Default Prompt")})
		}
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeCallFailed,
			fmt.Sprintf("entrypoint %q failed", name), err)
	}

	if len(results) == 0 {
		fmt.Println("Result: (void)")
		return nil
	}
	if results[0].Type() == cty.String && !results[0].IsNull() {
		fmt.Printf("Result: %s\n", results[0].AsString())
		return nil
	}
	data, jsonErr := values.ToJSON(results[0])
	if jsonErr != nil {
		return jsonErr
	}
	fmt.Printf("Result: %s\n", data)
	return nil
}

func sortedComponentNames(bp *blueprint.Blueprint) []string {
	names := make([]string, 0, len(bp.Components))
	for name := range bp.Components {
		names = append(names, name)
	}
	// Deterministic load order keeps logs stable across runs.
	sort.Strings(names)
	return names
}
