package contacts

import (
	"context"
	"testing"
)

func TestFindOrCreateIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.FindOrCreate(ctx, "+15550001111", "US", "")
	if err != nil {
		t.Fatalf("first find-or-create: %v", err)
	}
	if first.Verified() {
		t.Fatal("fresh contact must start unverified")
	}

	second, err := store.FindOrCreate(ctx, "+15550001111", "US", "Asha")
	if err != nil {
		t.Fatalf("second find-or-create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate number created a second contact: %s vs %s", second.ID, first.ID)
	}
}

func TestFindOrCreateSkipsDeletedRows(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Seed(Contact{ID: "old", PhoneNumber: "+15550001111", CountryCode: "US", IsDeleted: true})

	c, err := store.FindOrCreate(ctx, "+15550001111", "US", "")
	if err != nil {
		t.Fatalf("find-or-create: %v", err)
	}
	if c.ID == "old" {
		t.Fatal("deleted contact must not be resurrected")
	}
	if _, ok, _ := store.FindByNumber(ctx, "+15550001111"); !ok {
		t.Fatal("replacement contact not findable")
	}
}

func TestVerified(t *testing.T) {
	if (Contact{}).Verified() {
		t.Fatal("empty sid must read as unverified")
	}
	if !(Contact{SID: "PN123"}).Verified() {
		t.Fatal("sid-bearing contact must read as verified")
	}
}
