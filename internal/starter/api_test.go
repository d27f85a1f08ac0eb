package starter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"faktoro.io/faktoro-relay/internal/config"
)

type recorder struct {
	name  string
	trace *[]string
}

func (r *recorder) Apply(cfg *config.Configuration) {
	*r.trace = append(*r.trace, r.name+":apply")
}

func (r *recorder) Start(ctx context.Context) {
	*r.trace = append(*r.trace, r.name+":start")
}

func (r *recorder) Stop() {
	*r.trace = append(*r.trace, r.name+":stop")
}

func TestStartAppliesConfigBeforeStarting(t *testing.T) {
	config.Global = &config.Configuration{}
	var trace []string
	Start(context.Background(),
		&recorder{name: "a", trace: &trace},
		&recorder{name: "b", trace: &trace})
	require.Equal(t, []string{"a:apply", "a:start", "b:apply", "b:start"}, trace)
}

func TestStopRunsInReverseOrder(t *testing.T) {
	var trace []string
	Stop(&recorder{name: "a", trace: &trace}, &recorder{name: "b", trace: &trace})
	require.Equal(t, []string{"b:stop", "a:stop"}, trace)
}
