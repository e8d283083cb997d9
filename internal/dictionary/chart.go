package dictionary

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/account"
)

//go:embed default_chart.yaml
var defaultChart []byte

// ChartAccount is one account of a chart file. Children inherit the type and,
// when left empty, the category of their header.
type ChartAccount struct {
	Code        string             `yaml:"code"`
	Name        string             `yaml:"name"`
	Type        ledger.AccountType `yaml:"type,omitempty"`
	Category    string             `yaml:"category,omitempty"`
	Description string             `yaml:"description,omitempty"`
	Children    []ChartAccount     `yaml:"children,omitempty"`
}

// Chart is a chart of accounts as written in YAML.
type Chart struct {
	Accounts []ChartAccount `yaml:"accounts"`
}

// ParseChart decodes a chart file. Unknown keys are rejected.
func ParseChart(r io.Reader) (Chart, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Chart
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Chart{}, fmt.Errorf("%w: parsing chart: %v", errs.ErrInvalid, err)
	}
	for i := range c.Accounts {
		inherit(&c.Accounts[i], "", "")
	}
	return c, nil
}

// LoadChart reads a chart file from disk.
func LoadChart(path string) (Chart, error) {
	f, err := os.Open(path)
	if err != nil {
		return Chart{}, fmt.Errorf("reading chart: %w", err)
	}
	defer f.Close()
	return ParseChart(f)
}

// DefaultChart returns the built-in small-business chart.
func DefaultChart() Chart {
	c, err := ParseChart(bytes.NewReader(defaultChart))
	if err != nil {
		panic(fmt.Sprintf("dictionary: default chart: %v", err))
	}
	return c
}

func inherit(a *ChartAccount, typ ledger.AccountType, category string) {
	if a.Type == "" {
		a.Type = typ
	}
	if a.Category == "" {
		a.Category = category
	}
	for i := range a.Children {
		inherit(&a.Children[i], a.Type, a.Category)
	}
}

// Size counts every account in the chart.
func (c Chart) Size() int {
	var count func([]ChartAccount) int
	count = func(list []ChartAccount) int {
		n := len(list)
		for _, a := range list {
			n += count(a.Children)
		}
		return n
	}
	return count(c.Accounts)
}

// Creator is the part of the account service seeding needs.
type Creator interface {
	Create(ctx context.Context, in account.CreateInput) (ledger.Account, error)
	GetByCode(ctx context.Context, code string) (ledger.Account, error)
}

// Seed creates every chart account that does not exist yet, headers before
// their children, and returns the accounts it created. Existing codes are left
// as they are, so seeding twice is harmless.
func Seed(ctx context.Context, svc Creator, c Chart) ([]ledger.Account, error) {
	var created []ledger.Account
	var walk func(list []ChartAccount, parent *ledger.Account) error
	walk = func(list []ChartAccount, parent *ledger.Account) error {
		for _, ca := range list {
			acc, err := svc.GetByCode(ctx, ca.Code)
			switch {
			case err == nil:
			case errors.Is(err, errs.ErrNotFound):
				in := account.CreateInput{
					Code:        ca.Code,
					Name:        ca.Name,
					Description: ca.Description,
					Type:        ca.Type,
					Category:    ca.Category,
				}
				if parent != nil {
					id := parent.ID
					in.ParentID = &id
				}
				if acc, err = svc.Create(ctx, in); err != nil {
					return fmt.Errorf("seed %s: %w", ca.Code, err)
				}
				created = append(created, acc)
			default:
				return err
			}
			if err := walk(ca.Children, &acc); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(c.Accounts, nil); err != nil {
		return created, err
	}
	return created, nil
}
