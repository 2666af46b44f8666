package repair

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"example.com/readinmarsat/internal/inmarsat"
)

var allTypes = []inmarsat.HeaderType{
	inmarsat.TypeDNID,
	inmarsat.TypeDNIDMsg,
	inmarsat.TypePDN,
	inmarsat.TypeNDN,
	inmarsat.TypeMSG,
}

// noSOH keeps generated payloads from forming extra start-of-message
// patterns.
var noSOH = rapid.Byte().Filter(func(b byte) bool { return b != inmarsat.SOH })

func drawMessage(t *rapid.T, types []inmarsat.HeaderType) []byte {
	typ := rapid.SampledFrom(types).Draw(t, "type")
	layout, _ := typ.Struct()
	f := inmarsat.HeaderFields{
		Type:             typ,
		RefNo:            rapid.Uint32().Draw(t, "refNo"),
		Presentation:     rapid.SampledFrom([]inmarsat.Presentation{inmarsat.PresentationIA5, inmarsat.PresentationData}).Draw(t, "presentation"),
		FailureReason:    rapid.Uint8Range(3, 0xFF).Draw(t, "failureReason"),
		DeliveryAttempts: rapid.Uint8Range(3, 0xFF).Draw(t, "deliveryAttempts"),
		SatIDAndLesID:    rapid.Uint8Range(3, 0xFF).Draw(t, "satLes"),
		StoredTime:       time.Unix(rapid.Int64Range(0, storedAt.Unix()).Draw(t, "storedTime"), 0),
		DNID:             rapid.Uint16().Draw(t, "dnid"),
		MesMobNo:         rapid.Uint32().Draw(t, "mesMobNo"),
		MemberNo:         rapid.Byte().Draw(t, "memberNo"),
	}
	// bytes that can slide into the presentation slot after a loss never
	// hold a valid presentation value
	var body []byte
	if layout.Has(inmarsat.FieldDataLength) {
		body = rapid.SliceOfN(noSOH, 3, 64).Draw(t, "body")
	}
	msg, err := inmarsat.EncodeMessage(f, body)
	require.NoError(t, err)
	if len(Markers(msg)) != 1 {
		t.Skip("header fields form a second marker")
	}
	return msg
}

func drawStream(t *rapid.T, types []inmarsat.HeaderType) ([]byte, int) {
	n := rapid.IntRange(1, 4).Draw(t, "messages")
	var buf []byte
	for i := 0; i < n; i++ {
		buf = append(buf, drawMessage(t, types)...)
	}
	return buf, n
}

func TestPropertyWellFormedIsFixedPoint(t *testing.T) {
	for _, s := range []PaddingStrategy{PaddingTerminator, PaddingStoredTime} {
		p, err := NewPipeline(Options{Padding: s, Now: func() time.Time { return fixedNow }})
		require.NoError(t, err)
		t.Run(string(s), func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				buf, n := drawStream(t, allTypes)
				if len(Markers(buf)) != n {
					t.Skip("concatenation formed an extra marker")
				}
				res := p.Run(buf)
				assert.Equal(t, buf, res.Output)
				assert.Zero(t, res.Inserted())
			})
		})
	}
}

func TestPropertyRefNoLossRestoresLength(t *testing.T) {
	withPresentation := []inmarsat.HeaderType{inmarsat.TypeDNID, inmarsat.TypeDNIDMsg, inmarsat.TypeMSG}
	rapid.Check(t, func(t *rapid.T) {
		msg := drawMessage(t, withPresentation)
		lost := rapid.IntRange(1, 2).Draw(t, "lost")
		corrupted := drop(msg, inmarsat.PosRefNoStart, lost)

		once := Repair(corrupted)
		require.Len(t, once, len(msg))
		for i := 0; i < lost; i++ {
			assert.Equal(t, ZeroFill, once[inmarsat.PosRefNoStart+i])
		}
		assert.Equal(t, msg[inmarsat.PosRefNoStart+lost:], once[inmarsat.PosRefNoStart+lost:])
		assert.Equal(t, once, Repair(once))
	})
}

func TestPropertyMaterializeLength(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buf := rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(t, "buf")
		n := rapid.IntRange(0, 8).Draw(t, "edits")
		var edits []Insertion
		want := len(buf)
		for i := 0; i < n; i++ {
			off := rapid.IntRange(0, len(buf)-1).Draw(t, "offset")
			fillLen := rapid.IntRange(1, 3).Draw(t, "fill")
			edits = append(edits, Insertion{Offset: off, Fill: fill(ZeroFill, fillLen)})
			want += fillLen
		}
		out := Materialize(buf, edits)
		assert.Len(t, out, want)
		if len(edits) == 0 {
			assert.Equal(t, buf, out)
		}
	})
}
