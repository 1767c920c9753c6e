package state

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/pwillett/critter/internal/statmath"
)

// Field names one synced slice of session data. Dirty tracking and sync
// envelopes both work at field granularity so a remote change to hunger
// can land while a local change to happiness is still waiting to push.
type Field string

const (
	FieldHealth      Field = "health"
	FieldHunger      Field = "hunger"
	FieldHappiness   Field = "happiness"
	FieldCleanliness Field = "cleanliness"
	FieldEnergy      Field = "energy"
	FieldName        Field = "name"
	FieldLevel       Field = "level"
	FieldXP          Field = "xp"
	FieldCoins       Field = "coins"
	FieldQuests      Field = "quests"
)

// SyncedFields lists every field that travels in a sync envelope.
// Mood and LastUpdated are deliberately absent: mood is re-derived on
// every device, and LastUpdated is each session's local decay anchor.
var SyncedFields = []Field{
	FieldHealth, FieldHunger, FieldHappiness, FieldCleanliness, FieldEnergy,
	FieldName, FieldLevel, FieldXP, FieldCoins, FieldQuests,
}

func fieldValue(d *Data, f Field) any {
	switch f {
	case FieldHealth:
		return d.Pet.Stats.Health
	case FieldHunger:
		return d.Pet.Stats.Hunger
	case FieldHappiness:
		return d.Pet.Stats.Happiness
	case FieldCleanliness:
		return d.Pet.Stats.Cleanliness
	case FieldEnergy:
		return d.Pet.Stats.Energy
	case FieldName:
		return d.Pet.Name
	case FieldLevel:
		return d.Pet.Level
	case FieldXP:
		return d.Pet.XP
	case FieldCoins:
		return d.Wallet.Coins
	case FieldQuests:
		return d.Quests
	default:
		return nil
	}
}

func setField(d *Data, f Field, raw json.RawMessage) error {
	var err error
	switch f {
	case FieldHealth:
		err = json.Unmarshal(raw, &d.Pet.Stats.Health)
	case FieldHunger:
		err = json.Unmarshal(raw, &d.Pet.Stats.Hunger)
	case FieldHappiness:
		err = json.Unmarshal(raw, &d.Pet.Stats.Happiness)
	case FieldCleanliness:
		err = json.Unmarshal(raw, &d.Pet.Stats.Cleanliness)
	case FieldEnergy:
		err = json.Unmarshal(raw, &d.Pet.Stats.Energy)
	case FieldName:
		err = json.Unmarshal(raw, &d.Pet.Name)
	case FieldLevel:
		err = json.Unmarshal(raw, &d.Pet.Level)
	case FieldXP:
		err = json.Unmarshal(raw, &d.Pet.XP)
	case FieldCoins:
		err = json.Unmarshal(raw, &d.Wallet.Coins)
	case FieldQuests:
		var quests []Quest
		if err = json.Unmarshal(raw, &quests); err == nil {
			d.Quests = quests
		}
	default:
		// Unknown fields from newer peers are skipped, not fatal.
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode field %s: %w", f, err)
	}
	d.Pet.Stats.Mood = statmath.DeriveMood(d.Pet.Stats)
	return nil
}

// ApplyFields decodes the given field payloads into d, skipping unknown
// fields and re-deriving mood. Used by the authoritative store when
// applying a pushed envelope.
func ApplyFields(d *Data, fields map[Field]json.RawMessage) error {
	for f, raw := range fields {
		if err := setField(d, f, raw); err != nil {
			return err
		}
	}
	return nil
}

// DiffFields reports which synced fields differ between two data copies.
func DiffFields(before, after *Data) []Field {
	var changed []Field
	for _, f := range SyncedFields {
		if !reflect.DeepEqual(fieldValue(before, f), fieldValue(after, f)) {
			changed = append(changed, f)
		}
	}
	return changed
}

// ExtractFields marshals the named fields for a sync envelope.
func ExtractFields(d *Data, fields []Field) (map[Field]json.RawMessage, error) {
	out := make(map[Field]json.RawMessage, len(fields))
	for _, f := range fields {
		v := fieldValue(d, f)
		if v == nil {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", f, err)
		}
		out[f] = raw
	}
	return out, nil
}
