package scanner

import (
	"testing"
	"time"

	"sitemedic/internal/models"
	"sitemedic/internal/store"
)

func waitForStatus(t *testing.T, fx *runnerFixture, id int64, want string) *models.ScanJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetScan(fx.db, id)
		if err != nil {
			t.Fatalf("get scan: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("scan %d never reached %s", id, want)
	return nil
}

func TestPoolProcessesQueuedScans(t *testing.T) {
	fx := newRunnerFixture(t)
	fx.mem.Put("/site/a.php", []byte("<?php echo 1;"))
	fx.mem.Put("/site/b.php", []byte(`<?php eval($x);`))

	pool := NewPool(fx.db, fx.runner, 2, 10*time.Millisecond)
	pool.Start()
	defer pool.Stop()

	first, _ := store.CreateScan(fx.db, 1, fx.session, "/site")
	second, _ := store.CreateScan(fx.db, 2, fx.session, "/site")

	jobA := waitForStatus(t, fx, first, models.ScanDone)
	jobB := waitForStatus(t, fx, second, models.ScanDone)
	if jobA.Progress != 100 || jobB.Progress != 100 {
		t.Fatalf("progress %d / %d", jobA.Progress, jobB.Progress)
	}
}

func TestPoolStopIsIdempotent(t *testing.T) {
	fx := newRunnerFixture(t)
	pool := NewPool(fx.db, fx.runner, 1, 10*time.Millisecond)
	pool.Start()
	pool.Stop()
	pool.Stop()
}
