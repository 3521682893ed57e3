package channel

import (
	"github.com/sdrcore/fastconv/internal/demod"
	"github.com/sdrcore/fastconv/internal/proto"
)

// Command is one decoded command packet's fields, a heterogeneous
// sequence flattened to named optional fields (spec §4.10, §6's
// non-exhaustive recognized-field list). Pointer/zero-slice fields are
// only applied when present, matching the wire format's sparse field
// sequence.
type Command struct {
	Tag uint64

	Preset string

	Kind               *demod.Kind
	FreqHz             *float64
	LOFreqHz           *float64
	DopplerHz          *float64
	DopplerRateHzPerS  *float64
	PostDemodShiftHz   *float64
	LowIFHz            *float64
	HighIFHz           *float64
	KaiserBeta         *float64

	SquelchOpenDB  *float64
	SquelchCloseDB *float64
	PLToneHz       *float64

	AGCEnable      *bool
	AGCHangTimeS   *float64
	RecoveryDBPerS *float64
	ThresholdDB    *float64

	PLLEnable *bool
	LoopBWHz  *float64
	Square    *bool

	Envelope *bool

	OutputRate     *int
	OutputChannels *int
	OutputEncoding *string

	MinPacketDurationS *float64
	StatusIntervalS    *float64

	SetOptions   uint64
	ClearOptions uint64
}

// Field type tags for the TLV schema this package recognizes (spec §6
// "non-exhaustive" list). Values are assigned locally; they only need
// to agree between this package's encoder and decoder.
const (
	fieldTag            = 1
	fieldStreamID       = 2
	fieldKind           = 3
	fieldFreq           = 4
	fieldLOFreq         = 5
	fieldDoppler        = 6
	fieldDopplerRate    = 7
	fieldPostDemodShift = 8
	fieldLowIF          = 9
	fieldHighIF         = 10
	fieldKaiserBeta     = 11
	fieldPreset         = 12
	fieldSquelchOpen    = 13
	fieldSquelchClose   = 14
	fieldPLTone         = 15
	fieldAGCEnable      = 16
	fieldAGCHangTime    = 17
	fieldRecoveryRate   = 18
	fieldThreshold      = 19
	fieldPLLEnable      = 20
	fieldLoopBW         = 21
	fieldSquare         = 22
	fieldEnvelope       = 23
	fieldOutputRate     = 24
	fieldOutputChannels = 25
	fieldOutputEncoding = 26
	fieldMinPacketDur   = 27
	fieldStatusInterval = 28
	fieldSetOptions     = 29
	fieldClearOptions   = 30

	// Status-only fields (never present in a command packet).
	fieldStatusPowerDB = 40
	fieldStatusN0      = 41
	fieldStatusDrops   = 42
)

func schemaFor(typ byte) proto.FieldSchema {
	switch typ {
	case fieldTag, fieldKind, fieldOutputRate, fieldOutputChannels, fieldSetOptions, fieldClearOptions:
		return proto.SchemaUint
	case fieldStreamID, fieldPreset, fieldOutputEncoding:
		return proto.SchemaString
	case fieldAGCEnable, fieldPLLEnable, fieldSquare, fieldEnvelope:
		return proto.SchemaUint // booleans travel as 0/1 uints
	default:
		return proto.SchemaFloat64
	}
}

// DecodeCommand parses a TLV command packet into a stream ID and a
// Command. Malformed fields are already skipped by proto.Decode (spec
// §7 invalid-command semantics); fields of an unrecognized type are
// decoded under the default schema and then ignored by the switch
// below.
func DecodeCommand(data []byte) (streamID string, cmd Command, err error) {
	_, fields, err := proto.Decode(data, schemaFor)
	if err != nil {
		return "", Command{}, err
	}
	for _, f := range fields {
		switch f.Type {
		case fieldTag:
			cmd.Tag = f.Value.(uint64)
		case fieldStreamID:
			streamID = f.Value.(string)
		case fieldPreset:
			cmd.Preset = f.Value.(string)
		case fieldKind:
			k := demod.Kind(f.Value.(uint64))
			cmd.Kind = &k
		case fieldFreq:
			v := f.Value.(float64)
			cmd.FreqHz = &v
		case fieldLOFreq:
			v := f.Value.(float64)
			cmd.LOFreqHz = &v
		case fieldDoppler:
			v := f.Value.(float64)
			cmd.DopplerHz = &v
		case fieldDopplerRate:
			v := f.Value.(float64)
			cmd.DopplerRateHzPerS = &v
		case fieldPostDemodShift:
			v := f.Value.(float64)
			cmd.PostDemodShiftHz = &v
		case fieldLowIF:
			v := f.Value.(float64)
			cmd.LowIFHz = &v
		case fieldHighIF:
			v := f.Value.(float64)
			cmd.HighIFHz = &v
		case fieldKaiserBeta:
			v := f.Value.(float64)
			cmd.KaiserBeta = &v
		case fieldSquelchOpen:
			v := f.Value.(float64)
			cmd.SquelchOpenDB = &v
		case fieldSquelchClose:
			v := f.Value.(float64)
			cmd.SquelchCloseDB = &v
		case fieldPLTone:
			v := f.Value.(float64)
			cmd.PLToneHz = &v
		case fieldAGCEnable:
			v := f.Value.(uint64) != 0
			cmd.AGCEnable = &v
		case fieldAGCHangTime:
			v := f.Value.(float64)
			cmd.AGCHangTimeS = &v
		case fieldRecoveryRate:
			v := f.Value.(float64)
			cmd.RecoveryDBPerS = &v
		case fieldThreshold:
			v := f.Value.(float64)
			cmd.ThresholdDB = &v
		case fieldPLLEnable:
			v := f.Value.(uint64) != 0
			cmd.PLLEnable = &v
		case fieldLoopBW:
			v := f.Value.(float64)
			cmd.LoopBWHz = &v
		case fieldSquare:
			v := f.Value.(uint64) != 0
			cmd.Square = &v
		case fieldEnvelope:
			v := f.Value.(uint64) != 0
			cmd.Envelope = &v
		case fieldOutputRate:
			v := int(f.Value.(uint64))
			cmd.OutputRate = &v
		case fieldOutputChannels:
			v := int(f.Value.(uint64))
			cmd.OutputChannels = &v
		case fieldOutputEncoding:
			v := f.Value.(string)
			cmd.OutputEncoding = &v
		case fieldMinPacketDur:
			v := f.Value.(float64)
			cmd.MinPacketDurationS = &v
		case fieldStatusInterval:
			v := f.Value.(float64)
			cmd.StatusIntervalS = &v
		case fieldSetOptions:
			cmd.SetOptions = f.Value.(uint64)
		case fieldClearOptions:
			cmd.ClearOptions = f.Value.(uint64)
		}
	}
	return streamID, cmd, nil
}

// requiresRestart reports whether applying cmd on top of the current
// state must tear down and relaunch the demodulator (spec §4.10:
// "sample rate change, demodulator-kind change, payload-type change").
func requiresRestart(current Kind, currentRate int, cmd Command) bool {
	if cmd.Kind != nil && *cmd.Kind != current {
		return true
	}
	if cmd.OutputRate != nil && *cmd.OutputRate != currentRate {
		return true
	}
	if cmd.OutputEncoding != nil {
		return true
	}
	return false
}

// requiresNewFilter reports whether applying cmd must recompute the
// channel's frequency response (spec §4.10: "filter edges ... set a
// new-filter flag").
func requiresNewFilter(cmd Command) bool {
	return cmd.LowIFHz != nil || cmd.HighIFHz != nil || cmd.KaiserBeta != nil
}

// Kind re-exports demod.Kind so callers of this package don't need a
// second import for command classification.
type Kind = demod.Kind
