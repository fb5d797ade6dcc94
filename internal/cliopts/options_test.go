package cliopts

import "testing"

func TestRegisterFlagSetDefaults(t *testing.T) {
	fs, opts := RegisterFlagSet("orizon-gc-runtime")

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if opts.GCType != GCGenerational {
		t.Fatalf("expected default gc-type gen-gc, got %q", opts.GCType)
	}

	for _, opt := range dfxOptions {
		if !opts.DFXEnabled(opt.name) {
			t.Fatalf("expected DFX option %q to default enabled", opt.name)
		}
	}
}

func TestRegisterFlagSetParsesOverrides(t *testing.T) {
	fs, opts := RegisterFlagSet("orizon-gc-runtime")

	err := fs.Parse([]string{
		"--gc-type=g1-gc",
		"--heap-size-limit=67108864",
		"--young-space-size=4194304",
		"--no-async-jit",
		"--run-gc-in-place",
		"--sigusr1=0",
		"--dfx-log=0",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if opts.GCType != GCG1 {
		t.Fatalf("expected gc-type g1-gc, got %q", opts.GCType)
	}

	if opts.HeapSizeLimit != 67108864 {
		t.Fatalf("expected heap-size-limit 67108864, got %d", opts.HeapSizeLimit)
	}

	if opts.YoungSpaceSize != 4194304 {
		t.Fatalf("expected young-space-size 4194304, got %d", opts.YoungSpaceSize)
	}

	if !opts.NoAsyncJIT || !opts.RunGCInPlace {
		t.Fatalf("expected no-async-jit and run-gc-in-place set")
	}

	if opts.DFXEnabled("sigusr1") {
		t.Fatalf("expected sigusr1 disabled by --sigusr1=0")
	}

	if opts.DFXEnabled("dfx-log") {
		t.Fatalf("expected dfx-log disabled by --dfx-log=0")
	}

	if !opts.DFXEnabled("signal-catcher") {
		t.Fatalf("expected signal-catcher to remain at its default of enabled")
	}
}

func TestGCTypeSetRejectsUnknownValue(t *testing.T) {
	var g GCType
	if err := g.Set("bogus"); err == nil {
		t.Fatalf("expected an error for an unknown gc-type")
	}
}

func TestTristateFlagRejectsNonBinaryValue(t *testing.T) {
	fs, _ := RegisterFlagSet("orizon-gc-runtime")

	if err := fs.Parse([]string{"--sigquit=maybe"}); err == nil {
		t.Fatalf("expected an error parsing a non 0/1 DFX value")
	}
}
