package roleassignstore_test

import (
	"reflect"
	"sort"
	"testing"

	roleassignstore "github.com/dalemusser/stratacomm/internal/app/store/roleassign"
	"github.com/dalemusser/stratacomm/internal/app/system/indexes"
	"github.com/dalemusser/stratacomm/internal/domain/models"
	"github.com/dalemusser/stratacomm/internal/testutil"
)

func TestStore_AssignRevoke(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	store := roleassignstore.New(db)

	for _, a := range []models.RoleAssignment{
		{UserID: "u1", RoleID: "readers", AssignedBy: "root"},
		{UserID: "u1", RoleID: "writers", AssignedBy: "root"},
		{UserID: "u1", RoleID: "readers", AssignedBy: "someone-else"},
	} {
		if err := store.Assign(ctx, a); err != nil {
			t.Fatalf("Assign(%s) failed: %v", a.RoleID, err)
		}
	}

	ids, err := store.RoleIDsByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("RoleIDsByUser failed: %v", err)
	}
	sort.Strings(ids)
	if !reflect.DeepEqual(ids, []string{"readers", "writers"}) {
		t.Errorf("role ids = %v", ids)
	}

	if removed, err := store.Revoke(ctx, "u1", "readers"); err != nil || !removed {
		t.Fatalf("Revoke = %v, %v", removed, err)
	}
	if removed, err := store.Revoke(ctx, "u1", "readers"); err != nil || removed {
		t.Errorf("second Revoke = %v, %v; want false, nil", removed, err)
	}
}
