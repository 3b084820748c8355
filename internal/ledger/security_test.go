package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
)

func TestValidateSecurity(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		wantMsg string
	}{
		{"clean gold", `{"type":"gold","action":"gain","value":"500","unit":"GP","reason":"loot"}`, ""},
		{"keyword", `{"type":"gold","action":"gain","value":"1","reason":"Ignore previous orders"}`,
			"Security Alert: Blocked suspicious keyword 'ignoreprevious' (detected in 'ignore previous orders')"},
		{"keyword with punctuation", `{"type":"stat","action":"gain","name":"STR","value":1,"reason":"cheat_code!!"}`,
			"Blocked suspicious keyword 'cheatcode'"},
		{"full-width keyword", `{"type":"item","action":"gain","name":"Sword","reason":"ｓｙｓｔｅｍ　ｏｖｅｒｒｉｄｅ"}`,
			"Blocked suspicious keyword 'systemoverride'"},
		{"gold over default cap", `{"type":"gold","action":"gain","value":"10001","unit":"Gems"}`,
			"Security Alert: Gold/Currency gain 10001 exceeds safety limit (10000)."},
		{"gold whitelisted unit", `{"type":"gold","action":"gain","value":"50000","unit":"gp"}`, ""},
		{"gold over high cap", `{"type":"gold","action":"gain","value":"1,000,000","unit":"GP"}`,
			"Gold/Currency gain 1000000 exceeds safety limit (999999)."},
		{"stat over cap", `{"type":"stat","action":"gain","name":"Strength","value":"21"}`,
			"Security Alert: Stat increase 21 exceeds safety limit (20)."},
		{"stat whitelisted", `{"type":"stat","action":"gain","name":"xp","value":"5000"}`, ""},
		{"item over cap", `{"type":"item","action":"gain","name":"Arrow","qty":51}`,
			"Security Alert: Item quantity 51 exceeds safety limit (50)."},
		{"item at cap", `{"type":"item","action":"gain","name":"Arrow","qty":50}`, ""},
		{"lose is not capped", `{"type":"gold","action":"lose","value":"999999999","unit":"Gems"}`, ""},
		{"set is not capped", `{"type":"stat","action":"set","name":"Strength","value":"500"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := event.Decode([]byte(tt.event))
			require.NoError(t, err)

			err = ValidateSecurity(ev)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.CodeSecurityRejection))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestNormalizeReason(t *testing.T) {
	assert.Equal(t, "developeroverride", normalizeReason("Developer-Override"))
	assert.Equal(t, "systemoverride", normalizeReason("ＳＹＳＴＥＭ ＯＶＥＲＲＩＤＥ"))
}
