package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stockroom-labs/inventory-gate/auth"
)

func TestRenderUser_Permissions(t *testing.T) {
	tests := []struct {
		name    string
		user    *auth.User
		want    string
		notWant string
	}{
		{
			name:    "admin with every flag denied",
			user:    &auth.User{Username: auth.AdminUsername, Flags: map[auth.Flag]bool{auth.FlagItemsEdit: false}},
			want:    "administrator (all)",
			notWant: "none",
		},
		{
			name:    "clerk lists granted flags",
			user:    &auth.User{Username: "clerk", Flags: map[auth.Flag]bool{auth.FlagItemsEdit: true, auth.FlagItemsAdd: false}},
			want:    string(auth.FlagItemsEdit),
			notWant: "administrator",
		},
		{
			name:    "user without flags",
			user:    &auth.User{Username: "guest"},
			want:    "none",
			notWant: "administrator",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			renderUser(&buf, tt.user)
			out := buf.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("Expected output to contain %q, got %s", tt.want, out)
			}
			if strings.Contains(out, tt.notWant) {
				t.Errorf("Expected output not to contain %q, got %s", tt.notWant, out)
			}
		})
	}
}
