package extract

import (
	"reflect"
	"testing"

	"github.com/IshaanNene/quickscout/internal/types"
)

func rec(id, name string, price float64) types.ProductRecord {
	return types.ProductRecord{ID: id, Name: name, Price: price, MRP: price}
}

func TestMergeKeepsRicherRecord(t *testing.T) {
	sparse := rec("p1", "Milk", 27)
	rich := rec("p1", "Milk", 27)
	rich.Brand = "Amul"
	rich.Weight = "500 ml"

	got := Merge([]types.ProductRecord{sparse, rec("p2", "Bread", 40), rich})
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != "p1" || got[0].Brand != "Amul" {
		t.Errorf("expected richer p1 in first position, got %+v", got[0])
	}
	if got[1].ID != "p2" {
		t.Errorf("expected p2 second, got %s", got[1].ID)
	}
}

func TestMergeTieKeepsFirst(t *testing.T) {
	a := rec("p1", "Milk", 27)
	a.Brand = "Amul"
	b := rec("p1", "Milk", 27)
	b.Weight = "1 l"

	got := Merge([]types.ProductRecord{a, b})
	if len(got) != 1 || got[0].Brand != "Amul" || got[0].Weight != "" {
		t.Fatalf("expected first record to win a tie, got %+v", got)
	}
}

func TestMergeIdempotent(t *testing.T) {
	inv := 4
	withInventory := rec("p3", "Eggs", 90)
	withInventory.Inventory = &inv

	in := []types.ProductRecord{
		rec("p1", "Milk", 27),
		rec("p2", "Bread", 40),
		withInventory,
		rec("p1", "Milk", 28),
		rec("p3", "Eggs", 90),
	}
	once := Merge(in)
	twice := Merge(once)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge is not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}

	ids := make(map[string]int)
	for _, r := range once {
		ids[r.ID]++
	}
	for id, n := range ids {
		if n != 1 {
			t.Errorf("id %s appears %d times", id, n)
		}
	}
	if once[2].Inventory == nil {
		t.Error("expected record with inventory to win for p3")
	}
}

func TestMergeDeterministic(t *testing.T) {
	in := []types.ProductRecord{rec("c", "C", 1), rec("a", "A", 1), rec("b", "B", 1), rec("a", "A", 2)}
	first := Merge(in)
	for i := 0; i < 20; i++ {
		if !reflect.DeepEqual(first, Merge(in)) {
			t.Fatal("merge output changed between runs")
		}
	}
	if first[0].ID != "c" || first[1].ID != "a" || first[2].ID != "b" {
		t.Errorf("expected first-seen order c,a,b, got %s,%s,%s", first[0].ID, first[1].ID, first[2].ID)
	}
	if first[1].Price != 1 {
		t.Errorf("equal richness should keep the first a, got price %v", first[1].Price)
	}
}

func TestMergeEmpty(t *testing.T) {
	if got := Merge(nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
