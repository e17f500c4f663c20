package plugin

import (
	"context"
	"errors"
	"testing"
)

type fakePlugin struct {
	name      string
	setupErr  error
	clientErr error
	client    any

	setupCalled    bool
	teardownCalled bool
}

func (f *fakePlugin) Name() string { return f.name }

func (f *fakePlugin) Setup(ctx context.Context, config map[string]any) error {
	f.setupCalled = true
	return f.setupErr
}

func (f *fakePlugin) Teardown(ctx context.Context) error {
	f.teardownCalled = true
	return nil
}

func (f *fakePlugin) GetClient() (any, error) {
	if f.clientErr != nil {
		return nil, f.clientErr
	}
	return f.client, nil
}

func TestRegistrySetupAndInject(t *testing.T) {
	r := NewRegistry()
	db := &fakePlugin{name: "database", client: "db-client"}

	if err := r.Setup(context.Background(), "database", db, nil); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !db.setupCalled {
		t.Fatal("expected Setup to be invoked")
	}

	dst := map[string]any{}
	r.InjectInto(dst)
	if dst["database"] != "db-client" {
		t.Fatalf("expected injected client, got %v", dst["database"])
	}
}

func TestRegistrySetupFailureAborts(t *testing.T) {
	r := NewRegistry()
	bad := &fakePlugin{name: "broken", setupErr: errors.New("connect refused")}

	if err := r.Setup(context.Background(), "broken", bad, nil); err == nil {
		t.Fatal("expected setup error to be surfaced")
	}
	if _, ok := r.Get("broken"); ok {
		t.Fatal("plugin should not be registered after a failed setup")
	}
}

func TestRegistryTeardownReverseOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	makePlugin := func(name string) *fakePlugin {
		return &fakePlugin{name: name}
	}

	a := makePlugin("a")
	b := makePlugin("b")
	_ = r.Setup(context.Background(), "a", a, nil)
	_ = r.Setup(context.Background(), "b", b, nil)

	// Wrap each plugin in a trackingPlugin to observe Teardown call order.
	teardownOrder := []string{}
	trackA := &trackingPlugin{fakePlugin: a, record: &teardownOrder}
	trackB := &trackingPlugin{fakePlugin: b, record: &teardownOrder}

	r2 := NewRegistry()
	_ = r2.Setup(context.Background(), "a", trackA, nil)
	_ = r2.Setup(context.Background(), "b", trackB, nil)
	r2.Teardown(context.Background())

	order = teardownOrder
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Fatalf("expected reverse teardown order [b a], got %v", order)
	}
}

type trackingPlugin struct {
	*fakePlugin
	record *[]string
}

func (t *trackingPlugin) Teardown(ctx context.Context) error {
	*t.record = append(*t.record, t.name)
	return t.fakePlugin.Teardown(ctx)
}
