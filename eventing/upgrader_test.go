package eventing

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renameField(from, to string) func(map[string]any) (map[string]any, error) {
	return func(data map[string]any) (map[string]any, error) {
		data[to] = data[from]
		delete(data, from)
		return data, nil
	}
}

func TestUpgradeChain_AppliesUpgradersInOrder(t *testing.T) {
	chain := NewUpgradeChain().MustRegister(
		UpgraderFunc{Type: "EstateCreatedEvent", From: 2, Migrate: renameField("title", "estateName")},
		UpgraderFunc{Type: "EstateCreatedEvent", From: 1, Migrate: renameField("name", "title")},
	)
	assert.Equal(t, 3, chain.TargetVersion("EstateCreatedEvent"))
	assert.Equal(t, 1, chain.TargetVersion("OperatorAddedToEstateEvent"))

	out, version, err := chain.Upgrade("EstateCreatedEvent", 1, []byte(`{"name":"Test Estate 1","count":12345678901234567890}`))
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	var data map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &data))
	assert.JSONEq(t, `"Test Estate 1"`, string(data["estateName"]))
	assert.Equal(t, "12345678901234567890", string(data["count"]), "numbers keep their precision")
	assert.NotContains(t, data, "name")
}

func TestUpgradeChain_CurrentVersionUntouched(t *testing.T) {
	chain := NewUpgradeChain().MustRegister(
		UpgraderFunc{Type: "EstateCreatedEvent", From: 1, Migrate: renameField("name", "estateName")},
	)
	payload := []byte(`{"estateName":"x"}`)

	out, version, err := chain.Upgrade("EstateCreatedEvent", 2, payload)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.Equal(t, payload, out)
}

func TestUpgradeChain_Errors(t *testing.T) {
	chain := NewUpgradeChain().MustRegister(
		UpgraderFunc{Type: "E", From: 2, Migrate: renameField("a", "b")},
	)

	_, _, err := chain.Upgrade("E", 1, []byte(`{}`))
	assert.ErrorContains(t, err, "missing upgrader")

	assert.Error(t, chain.Register(UpgraderFunc{Type: "E", From: 2, Migrate: renameField("a", "b")}))
	assert.Error(t, chain.Register(UpgraderFunc{Type: "", From: 1}))
	assert.Error(t, chain.Register(UpgraderFunc{Type: "E", From: 0}))

	failing := NewUpgradeChain().MustRegister(UpgraderFunc{Type: "E", From: 1, Migrate: func(map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	}})
	_, _, err = failing.Upgrade("E", 1, []byte(`{}`))
	assert.ErrorContains(t, err, "boom")

	_, _, err = failing.Upgrade("E", 1, []byte(`not json`))
	assert.Error(t, err)
}

func TestUpgradeChain_NilChainIsVersionOne(t *testing.T) {
	var chain *UpgradeChain
	assert.Equal(t, 1, chain.TargetVersion("E"))
}
