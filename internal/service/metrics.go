package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the ingestion-domain counters. The orphan and warning
// counters make the non-fatal degradations (digest failure, best-effort
// blob deletion failure, orphaned blobs) observable without failing the
// operations that produced them.
type Metrics struct {
	filesIngested      prometheus.Counter
	digestFailures     prometheus.Counter
	orphanedBlobs      prometheus.Counter
	blobDeleteFailures prometheus.Counter
	orphansSwept       prometheus.Counter
}

// NewMetrics creates and registers the service counters on the given registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		filesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filevault_files_ingested_total",
			Help: "Total number of files successfully ingested.",
		}),
		digestFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filevault_digest_failures_total",
			Help: "Total number of records stored with an unverified digest.",
		}),
		orphanedBlobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filevault_orphaned_blobs_total",
			Help: "Total number of blobs left without metadata after a failed insert.",
		}),
		blobDeleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filevault_blob_delete_failures_total",
			Help: "Total number of best-effort blob deletions that failed during complete-delete.",
		}),
		orphansSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filevault_orphans_swept_total",
			Help: "Total number of orphaned blobs removed by the reconciliation sweep.",
		}),
	}

	for _, c := range []prometheus.Counter{
		m.filesIngested,
		m.digestFailures,
		m.orphanedBlobs,
		m.blobDeleteFailures,
		m.orphansSwept,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// The inc helpers are nil-safe so the service works without metrics wired
// (e.g. in tests that only exercise control flow).

func (m *Metrics) incIngested() {
	if m != nil {
		m.filesIngested.Inc()
	}
}

func (m *Metrics) incDigestFailures() {
	if m != nil {
		m.digestFailures.Inc()
	}
}

func (m *Metrics) incOrphanedBlobs() {
	if m != nil {
		m.orphanedBlobs.Inc()
	}
}

func (m *Metrics) incBlobDeleteFailures() {
	if m != nil {
		m.blobDeleteFailures.Inc()
	}
}

func (m *Metrics) incOrphansSwept() {
	if m != nil {
		m.orphansSwept.Inc()
	}
}
