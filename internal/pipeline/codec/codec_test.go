package codec

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	errspkg "github.com/drblury/riskwire/internal/pipeline/errors"
	"github.com/drblury/riskwire/internal/pipeline/model"
)

func TestRoundTrip(t *testing.T) {
	original := model.NewSampleMessage(time.Now(), model.DefaultSampleDefaults())

	payload, err := Encode(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round trip mismatch:\noriginal: %+v\ndecoded:  %+v", original, decoded)
	}
}

func TestRoundTripPreservesFloatPrecision(t *testing.T) {
	msg := model.NewSampleMessage(time.Now(), model.DefaultSampleDefaults())
	precise := 0.1234567890123456789
	msg.Data[0].RiskMetrics[0].LGD = &precise

	payload, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if *decoded.Data[0].RiskMetrics[0].LGD != precise {
		t.Fatalf("lost float precision: %v != %v", *decoded.Data[0].RiskMetrics[0].LGD, precise)
	}
}

func TestEncodePreservesWireFieldNames(t *testing.T) {
	payload, err := Encode(model.NewSampleMessage(time.Now(), model.DefaultSampleDefaults()))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	for _, field := range []string{
		`"jobidentifier"`, `"analysisidentifier"`, `"instrumentreference"`,
		`"instrumentriskmetric"`, `"instrumenterror"`, `"maturitydate"`,
		`"expectedcreditlossamount"`,
	} {
		if !strings.Contains(string(payload), field) {
			t.Fatalf("expected %s in payload", field)
		}
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode([]byte(`{"jobidentifier": `))

	var malformed *errspkg.MalformedPayloadError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *MalformedPayloadError, got %v", err)
	}
}

func TestDecodeMissingMandatoryFields(t *testing.T) {
	msg := model.NewSampleMessage(time.Now(), model.DefaultSampleDefaults())
	msg.Data[0].Reference.MaturityDate = ""
	msg.JobID = ""

	payload, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	_, err = Decode(payload)
	var mismatch *errspkg.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *SchemaMismatchError, got %v", err)
	}

	joined := strings.Join(mismatch.Fields, ",")
	if !strings.Contains(joined, "jobidentifier") || !strings.Contains(joined, "maturitydate") {
		t.Fatalf("expected both missing fields reported, got %v", mismatch.Fields)
	}
}

func TestDecodeTreatsNullContainerAsAbsent(t *testing.T) {
	msg := model.NewSampleMessage(time.Now(), model.DefaultSampleDefaults())

	payload, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.Contains(string(payload), `"instrumentcashflow":null`) {
		t.Fatalf("expected explicit null container on the wire")
	}

	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Data[0].CashFlows != nil {
		t.Fatalf("expected null container to decode to nil, got %q", decoded.Data[0].CashFlows)
	}
}

func TestDecodeEmptyDataIsValid(t *testing.T) {
	payload := []byte(`{"jobidentifier":"J1","analysisidentifier":"A1","data":[]}`)

	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.JobID != "J1" || len(decoded.Data) != 0 {
		t.Fatalf("unexpected decode result: %+v", decoded)
	}
}
