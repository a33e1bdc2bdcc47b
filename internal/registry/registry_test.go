package registry

import "testing"

type fakeModule struct{ ep *EntryPoint }

func (m fakeModule) Register(r *Registry) {
	_ = r.Register(m.ep)
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	ep := &EntryPoint{Name: "generate"}
	if err := r.Register(ep); err != nil {
		t.Fatal(err)
	}
	got, ok := r.Lookup("generate")
	if !ok || got != ep {
		t.Fatalf("Lookup() = %v, %v, want the registered entry point", got, ok)
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := New()
	_ = r.Register(&EntryPoint{Name: "generate"})
	if err := r.Register(&EntryPoint{Name: "generate"}); err == nil {
		t.Fatal("expected error on duplicate registration")
	}
}

func TestEntryPointHasSplitKeyAndWantsParam(t *testing.T) {
	ep := &EntryPoint{
		Name:           "generate",
		SplitKeys:      []SplitKeyGroup{{Keys: []string{"project_points"}}, {Keys: []string{"year", "dset"}, Zipped: true}},
		InjectedParams: []string{"tag", "job_name"},
	}
	if !ep.HasSplitKey("dset") {
		t.Fatal("expected dset to be a recognized split key")
	}
	if ep.HasSplitKey("missing") {
		t.Fatal("did not expect missing to be a split key")
	}
	if !ep.WantsParam("tag") || ep.WantsParam("out_fpath") {
		t.Fatalf("unexpected WantsParam results")
	}
}

func TestLoadModulesRegistersEachModule(t *testing.T) {
	r := New()
	r.LoadModules(fakeModule{ep: &EntryPoint{Name: "a"}}, fakeModule{ep: &EntryPoint{Name: "b"}})
	if names := r.Names(); len(names) != 2 {
		t.Fatalf("Names() = %v, want 2 entries", names)
	}
}
