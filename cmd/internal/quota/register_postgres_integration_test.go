package quota

import (
	"testing"

	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/settings"
	"interviewprep/cmd/internal/storage/storagetest"
)

func TestRegister_ConcurrentReferrals_Postgres(t *testing.T) {
	t.Parallel()

	pool := storagetest.OpenPool(t)
	schema := storagetest.NewSchema(t, pool, "prep_quota_it")
	st, err := ledger.NewPostgresStore(pool, ledger.WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	assertConcurrentReferrals(t, newFixtureOn(t, st, FixedGroupPolicy(settings.GroupA), nil))
}
