package sensorscan

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestDecodeValue(t *testing.T) {
	for _, test := range []struct {
		Value    string
		Expected string
	}{
		{"NDUuMg==", "45.2"},
		{"ODc=", "87"},
		{"MTAsMjAsMzA=", "10,20,30"},
		{"", ""},
	} {
		v, err := DecodeValue(test.Value)
		if err != nil {
			t.Fatal(err)
		}
		if v != test.Expected {
			t.Fatalf("expected %q, got %q", test.Expected, v)
		}
	}

	if _, err := DecodeValue("not base64!"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseNumbers(t *testing.T) {
	for _, test := range []struct {
		Value    string
		Expected []float64
	}{
		{"10,20,30", []float64{10, 20, 30}},
		{"1, 2.5 ,3", []float64{1, 2.5, 3}},
		{"-4", []float64{-4}},
	} {
		if nums := ParseNumbers(test.Value); !reflect.DeepEqual(nums, test.Expected) {
			t.Fatalf("expected %v, got %v", test.Expected, nums)
		}
	}

	nums := ParseNumbers("a,2,")
	if len(nums) != 3 {
		t.Fatalf("expected 3 numbers, got %v", nums)
	}
	if !math.IsNaN(nums[0]) || nums[1] != 2 || !math.IsNaN(nums[2]) {
		t.Fatalf("expected [NaN 2 NaN], got %v", nums)
	}
}

func TestRead(t *testing.T) {
	sensors := DefaultSensors()

	newCentral := func() *fakeCentral {
		central := newFakeCentral()
		central.connected["a"] = true
		central.values[HumidityUUID] = "NDUuMg=="
		central.values[LightUUID] = "MTAsMjAsMzA="
		central.values[BatteryUUID] = "%%%"
		return central
	}

	t.Run("humidity", func(t *testing.T) {
		central := newCentral()
		v, err := NewReader(central).Read(t.Context(), "a", sensors.Humidity)
		if err != nil {
			t.Fatal(err)
		}
		if v != "45.2" {
			t.Fatalf("expected %q, got %q", "45.2", v)
		}

		if _, discovers := central.calls(); discovers != 0 {
			t.Fatalf("expected no discovery, got %d", discovers)
		}
	})

	t.Run("light", func(t *testing.T) {
		v, err := NewReader(newCentral()).Read(t.Context(), "a", sensors.Light)
		if err != nil {
			t.Fatal(err)
		}
		if nums := ParseNumbers(v); !reflect.DeepEqual(nums, []float64{10, 20, 30}) {
			t.Fatalf("expected [10 20 30], got %v", nums)
		}
	})

	t.Run("discover before read", func(t *testing.T) {
		central := newCentral()
		r := NewReader(central, WithDiscoverBeforeRead(true))
		if _, err := r.Read(t.Context(), "a", sensors.Humidity); err != nil {
			t.Fatal(err)
		}

		if _, discovers := central.calls(); discovers != 1 {
			t.Fatalf("expected 1 discovery, got %d", discovers)
		}
	})

	t.Run("malformed value", func(t *testing.T) {
		if _, err := NewReader(newCentral()).Read(t.Context(), "a", sensors.Battery); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("not connected", func(t *testing.T) {
		_, err := NewReader(newCentral()).Read(t.Context(), "b", sensors.Humidity)
		if !errors.Is(err, ErrNotConnected) {
			t.Fatalf("expected %v, got %v", ErrNotConnected, err)
		}
	})

	t.Run("no client", func(t *testing.T) {
		_, err := NewReader(nil).Read(t.Context(), "a", sensors.Humidity)
		if !errors.Is(err, ErrNoClient) {
			t.Fatalf("expected %v, got %v", ErrNoClient, err)
		}
	})
}
