package dataurl_test

import (
	"errors"
	"fmt"
	"runtime"
	"testing"

	"post2image/internal/dataurl"

	"github.com/google/go-cmp/cmp"
)

func TestEncode(t *testing.T) {
	got := dataurl.Encode("image/png", []byte{0x89, 'P', 'N', 'G'})
	if want := "data:image/png;base64,iVBORw=="; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestDecode(t *testing.T) {
	type want struct {
		mimeType string
		data     []byte
	}

	tests := []struct {
		name    string
		in      string
		want    want
		wantErr bool
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"data:image/png;base64,iVBORw==",
			want{"image/png", []byte{0x89, 'P', 'N', 'G'}},
			false,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"data:;base64,",
			want{"", []byte{}},
			false,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"https://example.com/a.png",
			want{},
			true,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"data:image/png,rawbytes",
			want{},
			true,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"data:image/png;base64",
			want{},
			true,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			"data:image/png;base64,***",
			want{},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mimeType, data, err := dataurl.Decode(tt.in)
			if tt.wantErr {
				if !errors.Is(err, dataurl.ErrMalformed) {
					t.Errorf("got %v, want %v", err, dataurl.ErrMalformed)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, want{mimeType, data}, cmp.AllowUnexported(want{})); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}
