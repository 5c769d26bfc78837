package alert_test

import (
	"encoding/json"
	"testing"
	"time"

	"alerta/internal/alert"
)

func TestTimeMarshalZeroPadsMilliseconds(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{
			name: "whole second",
			in:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			want: `"2024-01-01T00:00:00.000Z"`,
		},
		{
			name: "five milliseconds",
			in:   time.Date(2024, 1, 1, 0, 0, 0, 5*int(time.Millisecond), time.UTC),
			want: `"2024-01-01T00:00:00.005Z"`,
		},
		{
			name: "sub-millisecond precision truncated",
			in:   time.Date(2024, 6, 30, 23, 59, 59, 999999999, time.UTC),
			want: `"2024-06-30T23:59:59.999Z"`,
		},
		{
			name: "non-UTC zone normalised",
			in:   time.Date(2024, 1, 1, 1, 30, 0, 0, time.FixedZone("CET", 3600)),
			want: `"2024-01-01T00:30:00.000Z"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(alert.At(tt.in))
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("want %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTimeUnmarshalAcceptsAnyFractionalPrecision(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{
			name: "milliseconds",
			in:   `"2024-01-01T00:10:00.250Z"`,
			want: time.Date(2024, 1, 1, 0, 10, 0, 250*int(time.Millisecond), time.UTC),
		},
		{
			name: "no fraction",
			in:   `"2024-01-01T00:10:00Z"`,
			want: time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC),
		},
		{
			name: "microseconds truncated",
			in:   `"2024-01-01T00:10:00.123456Z"`,
			want: time.Date(2024, 1, 1, 0, 10, 0, 123*int(time.Millisecond), time.UTC),
		},
		{
			name: "numeric offset",
			in:   `"2024-01-01T01:10:00.000+01:00"`,
			want: time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got alert.Time
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("want %v, got %v", tt.want, got.Time)
			}
		})
	}
}

func TestTimeUnmarshalRejectsGarbage(t *testing.T) {
	for _, in := range []string{`"yesterday"`, `42`, `"2024-13-01T00:00:00Z"`} {
		var got alert.Time
		if err := json.Unmarshal([]byte(in), &got); err == nil {
			t.Errorf("Unmarshal(%s): want error, got nil", in)
		}
	}
}

func TestTimeRoundTrip(t *testing.T) {
	orig := alert.Now()
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back alert.Time
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(orig.Time) {
		t.Errorf("round trip changed value: want %v, got %v", orig, back)
	}
}

func TestTimeAdd(t *testing.T) {
	base := alert.At(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	got := base.Add(600 * time.Second)
	if got.String() != "2024-01-01T00:10:00.000Z" {
		t.Errorf("want 2024-01-01T00:10:00.000Z, got %s", got)
	}
}
