package planner

import (
	"testing"

	"github.com/epokhe/bm25am/internal/execscan"
	"github.com/epokhe/bm25am/schema"
)

func cfgWithFields() *schema.Config {
	return schema.New(
		schema.WithKeyField("id"),
		schema.WithTextField("body", schema.TextFieldOptions{Tokenizer: "default"}),
		schema.WithNumericField("price", schema.TypeI64),
		schema.WithBooleanField("active"),
		schema.WithMinRowsPerWorker(100),
	)
}

func TestBuildEmptyPredicatesMatchesAll(t *testing.T) {
	cfg := cfgWithFields()
	p := Build(cfg, nil, 0, false, 1000)
	if p.Query.Kind != p.Query.Kind {
		t.Fatalf("sanity")
	}
	if !p.FastFieldOnly {
		t.Fatalf("no predicates should trivially be fast-field-only")
	}
	if p.Method != execscan.MethodNormalScan {
		t.Fatalf("expected normal scan with no topK, got %v", p.Method)
	}
}

func TestBuildSinglePredicateNoWrap(t *testing.T) {
	cfg := cfgWithFields()
	p := Build(cfg, []Predicate{{Field: "body", Op: "match", Value: "hello"}}, 0, false, 1000)
	if p.Query.Field != "body" || p.Query.Term != "hello" {
		t.Fatalf("single predicate should compile to a bare term query, got %+v", p.Query)
	}
	if p.FastFieldOnly {
		t.Fatalf("text field predicate is not fast-field-only")
	}
}

func TestBuildMultiplePredicatesAndsThem(t *testing.T) {
	cfg := cfgWithFields()
	preds := []Predicate{
		{Field: "body", Op: "match", Value: "hello"},
		{Field: "active", Op: "=", Value: "true"},
	}
	p := Build(cfg, preds, 0, false, 1000)
	if len(p.Query.Must) != 2 {
		t.Fatalf("expected 2 must clauses, got %d", len(p.Query.Must))
	}
}

func TestFastFieldOnlyDetection(t *testing.T) {
	cfg := cfgWithFields()
	fastOnly := []Predicate{
		{Field: "price", Op: "range"},
		{Field: "active", Op: "="},
	}
	if !fastFieldOnly(cfg, fastOnly) {
		t.Fatalf("numeric+boolean predicates should be fast-field-only")
	}
	mixed := append(fastOnly, Predicate{Field: "body", Op: "match"})
	if fastFieldOnly(cfg, mixed) {
		t.Fatalf("a text predicate should disqualify fast-field-only")
	}
}

func TestTopKWithFastFieldOnlyPicksHeap(t *testing.T) {
	cfg := cfgWithFields()
	p := Build(cfg, []Predicate{{Field: "price", Op: "range"}}, 10, false, 1000)
	if p.Method != execscan.MethodTopKHeapVisible {
		t.Fatalf("expected topK heap-visible even when fast-field-only, got %v", p.Method)
	}
	if p.TopK != 10 {
		t.Fatalf("expected topK propagated, got %d", p.TopK)
	}
}

func TestTopKWithoutFastFieldPicksHeap(t *testing.T) {
	cfg := cfgWithFields()
	p := Build(cfg, []Predicate{{Field: "body", Op: "match", Value: "x"}}, 10, false, 1000)
	if p.Method != execscan.MethodTopKHeapVisible {
		t.Fatalf("expected topK heap-visible, got %v", p.Method)
	}
}

func TestInnerOfJoinStillScalesWorkersWithEstimatedRows(t *testing.T) {
	cfg := cfgWithFields()
	p := Build(cfg, nil, 0, true, 1_000_000)
	if p.Workers != 8 {
		t.Fatalf("InnerOfJoin must not skip the row-based worker computation, expected capped-at-8 workers, got %d", p.Workers)
	}
	if !p.InnerOfJoin {
		t.Fatalf("expected InnerOfJoin flag carried through")
	}
}

func TestInnerOfJoinFloorsWorkersAtOne(t *testing.T) {
	cfg := cfgWithFields()
	p := Build(cfg, nil, 0, true, 0)
	if p.Workers != 1 {
		t.Fatalf("expected InnerOfJoin to still floor workers at 1 for a tiny estimate, got %d", p.Workers)
	}
}

func TestWorkerCountScalesWithEstimatedRows(t *testing.T) {
	cfg := cfgWithFields()
	p := Build(cfg, nil, 0, false, 550)
	if p.Workers != 5 {
		t.Fatalf("expected 5 workers for 550 rows / 100 per worker, got %d", p.Workers)
	}
}

func TestWorkerCountCapsAtEight(t *testing.T) {
	cfg := cfgWithFields()
	p := Build(cfg, nil, 0, false, 10_000_000)
	if p.Workers != 8 {
		t.Fatalf("expected worker count capped at 8, got %d", p.Workers)
	}
}
