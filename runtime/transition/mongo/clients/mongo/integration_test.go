package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/flowforge/taskcore/runtime/transition"
)

var (
	testMongoClient    *mongodriver.Client
	testMongoContainer testcontainers.Container
	skipMongoTests     bool
)

func TestMain(m *testing.M) {
	setupMongoDB()
	code := m.Run()
	if testMongoContainer != nil {
		_ = testMongoContainer.Terminate(context.Background())
	}
	os.Exit(code)
}

func setupMongoDB() {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
			Tmpfs:        map[string]string{"/data/db": "rw"},
		}
		testMongoContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()
	if containerErr != nil {
		skipMongoTests = true
		return
	}

	host, err := testMongoContainer.Host(ctx)
	if err != nil {
		skipMongoTests = true
		return
	}
	port, err := testMongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		skipMongoTests = true
		return
	}

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	testMongoClient, err = mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		skipMongoTests = true
		return
	}
	if err := testMongoClient.Ping(ctx, nil); err != nil {
		skipMongoTests = true
	}
}

func getClient(t *testing.T) Client {
	t.Helper()
	if skipMongoTests {
		t.Skip("Docker not available, skipping MongoDB test")
	}
	coll := t.Name()
	_ = testMongoClient.Database("transitions_test").Collection(coll).Drop(context.Background())
	c, err := New(Options{Client: testMongoClient, Database: "transitions_test", Collection: coll})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestAppendAssignsDenseSequence(t *testing.T) {
	c := getClient(t)
	ctx := context.Background()

	types := []transition.Type{transition.Init, transition.Step, transition.Step}
	for i, typ := range types {
		tr := &transition.Transition{ExecutionID: "exec-1", Type: typ, Output: map[string]any{"i": i}}
		if err := c.Append(ctx, tr); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if tr.Seq != int64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, tr.Seq)
		}
		if tr.ID == "" {
			t.Fatal("expected store-assigned transition id")
		}
	}

	latest, err := c.Latest(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || latest.Seq != 3 {
		t.Fatalf("expected latest seq 3, got %+v", latest)
	}
}

func TestTerminalBlocksAppend(t *testing.T) {
	c := getClient(t)
	ctx := context.Background()

	if err := c.Append(ctx, &transition.Transition{ExecutionID: "exec-2", Type: transition.Init}); err != nil {
		t.Fatalf("Append init: %v", err)
	}
	if err := c.Append(ctx, &transition.Transition{ExecutionID: "exec-2", Type: transition.Finish}); err != nil {
		t.Fatalf("Append finish: %v", err)
	}
	err := c.Append(ctx, &transition.Transition{ExecutionID: "exec-2", Type: transition.Step})
	if err == nil {
		t.Fatal("expected append after terminal transition to fail")
	}
}

func TestListPagesForward(t *testing.T) {
	c := getClient(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		typ := transition.Step
		if i == 0 {
			typ = transition.Init
		}
		if err := c.Append(ctx, &transition.Transition{ExecutionID: "exec-3", Type: typ}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	page, err := c.List(ctx, "exec-3", "", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Transitions) != 2 || page.NextCursor == "" {
		t.Fatalf("expected a full first page with a cursor, got %d/%q", len(page.Transitions), page.NextCursor)
	}

	var seen int
	cursor := ""
	for {
		page, err := c.List(ctx, "exec-3", cursor, 2)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		seen += len(page.Transitions)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if seen != 5 {
		t.Fatalf("expected to page through 5 transitions, saw %d", seen)
	}
}
