// Package transform applies an ordered list of reversible byte transforms
// to chunk payloads. Outbound payloads pass through the stages in order;
// inbound payloads pass through the inverses in reverse order.
package transform

import (
	"fmt"
	"strings"
)

// Stage is one reversible transform.
type Stage interface {
	Name() string
	Forward(p []byte) ([]byte, error)
	Inverse(p []byte) ([]byte, error)
}

// Pipeline is safe for concurrent use when its stages are.
type Pipeline struct {
	stages []Stage
}

// NewPipeline returns a pipeline applying stages in the given order on the
// outbound path. An empty pipeline is the identity.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Outbound runs every stage's Forward in order.
func (p *Pipeline) Outbound(b []byte) ([]byte, error) {
	var err error
	for _, s := range p.stages {
		if b, err = s.Forward(b); err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	return b, nil
}

// Inbound runs every stage's Inverse in reverse order.
func (p *Pipeline) Inbound(b []byte) ([]byte, error) {
	var err error
	for i := len(p.stages) - 1; i >= 0; i-- {
		s := p.stages[i]
		if b, err = s.Inverse(b); err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	return b, nil
}

// String lists the stage names, e.g. "encrypt>zstd".
func (p *Pipeline) String() string {
	if len(p.stages) == 0 {
		return "identity"
	}
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return strings.Join(names, ">")
}

// Build assembles the fixed-order pipeline: encryption first, then
// compression. A nil cipher or empty compression name leaves that stage out.
func Build(cipher *Cipher, compression string) (*Pipeline, error) {
	var stages []Stage
	if cipher != nil {
		stages = append(stages, cipher)
	}
	if compression != "" {
		c, err := ParseCompression(compression)
		if err != nil {
			return nil, err
		}
		if c != CompressionNone {
			stages = append(stages, c)
		}
	}
	return NewPipeline(stages...), nil
}
