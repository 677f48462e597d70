package starter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"moff.io/crowdfund/internal/config"
)

type element struct {
	name    string
	applied *config.Configuration
	log     *[]string
}

func (e *element) Apply(c *config.Configuration) { e.applied = c }
func (e *element) Start(context.Context)        { *e.log = append(*e.log, "start "+e.name) }
func (e *element) Stop()                        { *e.log = append(*e.log, "stop "+e.name) }

func TestStartAppliesGlobalConfig(t *testing.T) {
	config.Global = &config.Configuration{LogLevel: "debug"}
	defer func() { config.Global = nil }()

	var log []string
	a, b := &element{name: "a", log: &log}, &element{name: "b", log: &log}
	Start(context.Background(), a, b)
	Stop(a, b, "not stopable")

	assert.Same(t, config.Global, a.applied)
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}
