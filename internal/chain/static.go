package chain

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"thetagang-wheel/internal/types"
)

// StaticProvider serves chains from a YAML fixture keyed by symbol. Symbols absent from the file have no options.
type StaticProvider struct {
	chains map[string][]types.OptionContract
}

type staticFile struct {
	Chains map[string][]types.OptionContract `yaml:"chains"`
}

func LoadStatic(path string) (*StaticProvider, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f staticFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return NewStatic(f.Chains), nil
}

func NewStatic(chains map[string][]types.OptionContract) *StaticProvider {
	norm := make(map[string][]types.OptionContract, len(chains))
	for sym, cs := range chains {
		sym = strings.ToUpper(sym)
		for _, c := range cs {
			if c.Symbol == "" {
				c.Symbol = sym
			}
			norm[sym] = append(norm[sym], c)
		}
	}
	return &StaticProvider{chains: norm}
}

func (p *StaticProvider) FetchChain(ctx context.Context, symbol string, expiry time.Time) ([]types.OptionContract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src := p.chains[strings.ToUpper(symbol)]
	return append([]types.OptionContract(nil), src...), nil
}
