package ledger

import (
	"strings"
	"unicode"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/event"
	"github.com/roach88/litledger/internal/num"
)

// blockedKeywords are matched against the normalized reason text.
var blockedKeywords = []string{
	"ignoreprompt",
	"ignoreprevious",
	"cheatcode",
	"developeroverride",
	"systemoverride",
	"ignoreinstructions",
	"disregardprevious",
}

// highCapNames are units and stats whose gains may be large.
var highCapNames = map[string]bool{
	"XP": true, "EXPERIENCE": true,
	"GOLD": true, "GP": true, "SP": true, "CP": true, "CREDITS": true, "MONEY": true, "USD": true, "$": true, "CENT": true,
	"HEALTH": true, "HP": true, "LIFE": true,
	"MANA": true, "MP": true, "MAGIC": true,
	"STAMINA": true, "ENERGY": true,
	"FATIGUE": true, "DEBT": true, "STRESS": true,
	"DAMAGE": true, "DEFENSE": true, "ATTACK": true, "POWER": true,
}

var (
	highCap = num.FromInt(999999)
	goldCap = num.FromInt(10000)
	statCap = num.FromInt(20)
	itemCap = num.FromInt(50)
)

// normalizeReason folds compatibility characters (full-width letters and
// the like), lowercases, and drops everything but letters and digits.
func normalizeReason(reason string) string {
	folded := strings.ToLower(norm.NFKC.String(reason))
	var b strings.Builder
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateSecurity screens a candidate before commit. It rejects reasons
// that carry a prompt-injection keyword and gains above the per-name caps.
// Only gains are capped. Strict mode has no bearing on these checks.
func ValidateSecurity(ev *event.Event) error {
	normalized := normalizeReason(ev.Reason)
	for _, kw := range blockedKeywords {
		if strings.Contains(normalized, kw) {
			return errs.New(errs.CodeSecurityRejection,
				"Security Alert: Blocked suspicious keyword '%s' (detected in '%s')", kw, strings.ToLower(ev.Reason)).
				WithDetail("keyword", kw)
		}
	}
	if ev.Action != event.ActionGain {
		return nil
	}
	switch p := ev.Payload.(type) {
	case *event.Gold:
		limit := capFor(p.Unit, goldCap)
		if v := p.Value.Decimal(); v.Cmp(limit) > 0 {
			return capError("Gold/Currency gain", v, limit)
		}
	case *event.Stat:
		limit := capFor(p.Name, statCap)
		if v := p.Value.Decimal(); v.Cmp(limit) > 0 {
			return capError("Stat increase", v, limit)
		}
	case *event.Item:
		qty := p.Qty.Or(event.Int(1)).Decimal()
		if qty.Cmp(itemCap) > 0 {
			return capError("Item quantity", qty, itemCap)
		}
	}
	return nil
}

func capFor(name string, def *apd.Decimal) *apd.Decimal {
	if highCapNames[strings.ToUpper(name)] {
		return highCap
	}
	return def
}

func capError(what string, v, limit *apd.Decimal) error {
	return errs.New(errs.CodeSecurityRejection, "Security Alert: %s %s exceeds safety limit (%s).",
		what, num.String(v), num.String(limit)).
		WithDetail("value", num.String(v)).
		WithDetail("limit", num.String(limit))
}
