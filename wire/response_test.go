package wire

import (
	"errors"
	"reflect"
	"testing"

	"github.com/janelia-flyem/pixaccess/pixel"
)

func TestTokenize(t *testing.T) {
	body := []byte("Dims=4,4,1,1,1,2\r\nFinished=1\r\nSigned=0\r\n\r\nFloat=0\n")
	expected := []string{"Dims", "4", "4", "1", "1", "1", "2", "Finished", "1", "Signed", "0", "Float", "0"}
	if got := Tokenize(body); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v\n", expected, got)
	}
	if got := Tokenize(nil); len(got) != 0 {
		t.Errorf("expected no tokens, got %v\n", got)
	}
	empties := map[string][]string{
		"SHA1=\r\n":        {"SHA1", ""},
		"Dims=1,,2\r\n":    {"Dims", "1", "", "2"},
		"Name=a,\r\nX=1\n": {"Name", "a", "", "X", "1"},
	}
	for body, expected := range empties {
		if got := Tokenize([]byte(body)); !reflect.DeepEqual(got, expected) {
			t.Errorf("body %q: expected %q, got %q\n", body, expected, got)
		}
	}
}

func infoSteps(x, y *int, sealed *bool) []Step {
	var z, c, tt, b int
	var signed, float bool
	return []Step{
		Key("Dims"), Int("X", x), Int("Y", y), Int("Z", &z), Int("C", &c), Int("T", &tt), Int("B", &b),
		Key("Finished"), Bool("Finished", sealed),
		Key("Signed"), Bool("Signed", &signed),
		Key("Float"), Bool("Float", &float),
	}
}

func TestExpect(t *testing.T) {
	var x, y int
	var sealed bool
	body := new(Encoder).Line("Dims", 7, 5, 1, 1, 1, 2).Line("Finished", true).
		Line("Signed", false).Line("Float", false).Bytes()
	if err := NewResponse("PixelsInfo", body).Expect(infoSteps(&x, &y, &sealed)...); err != nil {
		t.Fatalf("unexpected error: %v\n", err)
	}
	if x != 7 || y != 5 || !sealed {
		t.Errorf("bad parse: x %d, y %d, sealed %t\n", x, y, sealed)
	}
}

func TestExpectMismatches(t *testing.T) {
	tests := []struct {
		body     string
		step     string
		expected string
		actual   string
	}{
		{"Dimz=1,1,1,1,1,1\r\n", "Dims", `key "Dims"`, "Dimz"},
		{"Dims=1,x,1,1,1,1\r\n", "Y", "integer", "x"},
		{"Dims=1,,1,1,1,1\r\n", "Y", "integer", ""},
		{"Dims=,1,1,1,1,1\r\n", "X", "integer", ""},
		{"Dims=1,1,1,1,1,1\r\nFinished=2\r\n", "Finished", "0 or 1", "2"},
		{"Dims=1,1,1,1,1\r\nFinished=1\r\n", "B", "integer", "Finished"},
		{"Dims=1,1,1,1,1,1\r\nFinished=1\r\nSigned=0\r\n", "Float", `key "Float"`, "<end of response>"},
		{"Dims=1,1,1,1,1,1\r\nFinished=1\r\nSigned=0\r\nFloat=0\r\nExtra=1\r\n", "end", "end of response", "Extra"},
	}
	for _, tc := range tests {
		var x, y int
		var sealed bool
		err := NewResponse("PixelsInfo", []byte(tc.body)).Expect(infoSteps(&x, &y, &sealed)...)
		var perr *pixel.ProtocolError
		if !errors.As(err, &perr) {
			t.Fatalf("body %q: expected ProtocolError, got %v\n", tc.body, err)
		}
		if perr.Step != tc.step || perr.Expected != tc.expected || perr.Actual != tc.actual {
			t.Errorf("body %q: expected step %s/%s/%s, got %+v\n", tc.body, tc.step, tc.expected, tc.actual, perr)
		}
		if perr.Method != "PixelsInfo" {
			t.Errorf("expected method in error, got %q\n", perr.Method)
		}
	}
}
