package metrics

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

type nilPool struct{}

func (nilPool) Stat() *pgxpool.Stat { return nil }

type recordingRegisterer struct {
	prometheus.Registerer
	names []string
}

func (r *recordingRegisterer) MustRegister(cs ...prometheus.Collector) {
	for _, c := range cs {
		ch := make(chan *prometheus.Desc, 1)
		c.Describe(ch)
		r.names = append(r.names, (<-ch).String())
	}
	r.Registerer.MustRegister(cs...)
}

func TestRegisterPool(t *testing.T) {
	reg := &recordingRegisterer{Registerer: prometheus.NewRegistry()}
	RegisterPool(reg, nilPool{})

	assert.Len(t, reg.names, 4)
	for _, n := range reg.names {
		assert.Contains(t, n, "miniforge_db_pool_")
	}
}
