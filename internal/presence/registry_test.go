package presence

import (
	"reflect"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestRegistry_AddAndRemove(t *testing.T) {
	r := NewRegistry(WithClock(fixedClock(1000)))

	added := r.Add("conn-1", "inst-a", Participant{
		PersistentUserID: "user-1",
		DisplayName:      "Ada",
		Status:           StatusOnline,
	})
	testutil.AssertEqual(t, "connection id", added.ConnectionID, "conn-1")
	testutil.AssertEqual(t, "last active", added.LastActiveAt, int64(1000))

	key, ok := r.InstanceOf("conn-1")
	testutil.AssertEqual(t, "mapped", ok, true)
	testutil.AssertEqual(t, "instance", key, "inst-a")

	removed, key, ok := r.Remove("conn-1")
	testutil.AssertEqual(t, "removed", ok, true)
	testutil.AssertEqual(t, "removed instance", key, "inst-a")
	testutil.AssertEqual(t, "removed name", removed.DisplayName, "Ada")

	_, _, ok = r.Remove("conn-1")
	testutil.AssertEqual(t, "second remove", ok, false)

	_, ok = r.InstanceOf("conn-1")
	testutil.AssertEqual(t, "mapped after remove", ok, false)
	testutil.AssertEqual(t, "count", r.Count(), 0)
}

func TestRegistry_ParticipantsInJoinOrder(t *testing.T) {
	r := NewRegistry()
	r.Add("c3", "inst", Participant{DisplayName: "third"})
	r.Add("c1", "inst", Participant{DisplayName: "first"})
	r.Add("c2", "other", Participant{DisplayName: "elsewhere"})
	r.Add("c4", "inst", Participant{DisplayName: "last"})

	ps := r.ParticipantsIn("inst")
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.DisplayName)
	}

	exp := []string{"third", "first", "last"}
	if !reflect.DeepEqual(names, exp) {
		t.Errorf("got %v, expected %v", names, exp)
	}
	testutil.AssertEqual(t, "count in inst", r.CountIn("inst"), 3)
	testutil.AssertEqual(t, "count in missing", r.CountIn("none"), 0)
	testutil.AssertEqual(t, "empty instance", len(r.ParticipantsIn("none")), 0)
}

func TestRegistry_Updates(t *testing.T) {
	grab := CursorGrabbing
	url := "https://example.com/a.png"
	open := true

	tests := map[string]struct {
		update func(r *Registry) bool
		check  func(t *testing.T, p Participant)
	}{
		"position keeps cursor state when omitted": {
			update: func(r *Registry) bool {
				return r.UpdatePosition("conn", Position{X: 3, Y: 4}, nil)
			},
			check: func(t *testing.T, p Participant) {
				testutil.AssertEqual(t, "position", p.Position, Position{X: 3, Y: 4})
				testutil.AssertEqual(t, "cursor", p.CursorState, CursorPointer)
			},
		},
		"position with cursor state": {
			update: func(r *Registry) bool {
				return r.UpdatePosition("conn", Position{X: 1, Y: 1}, &grab)
			},
			check: func(t *testing.T, p Participant) {
				testutil.AssertEqual(t, "cursor", p.CursorState, CursorGrabbing)
			},
		},
		"status": {
			update: func(r *Registry) bool {
				return r.UpdateStatus("conn", StatusBusy)
			},
			check: func(t *testing.T, p Participant) {
				testutil.AssertEqual(t, "status", p.Status, StatusBusy)
			},
		},
		"profile applies only set fields": {
			update: func(r *Registry) bool {
				_, ok := r.UpdateProfile("conn", ProfilePatch{AvatarURL: &url, IsMenuOpen: &open})
				return ok
			},
			check: func(t *testing.T, p Participant) {
				testutil.AssertEqual(t, "avatar url", p.AvatarURL, url)
				testutil.AssertEqual(t, "menu", p.IsMenuOpen, true)
				testutil.AssertEqual(t, "name untouched", p.DisplayName, "Ada")
				testutil.AssertEqual(t, "status untouched", p.Status, StatusOnline)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			now := int64(1000)
			r := NewRegistry(WithClock(func() time.Time { return time.UnixMilli(now) }))
			r.Add("conn", "inst", Participant{
				DisplayName: "Ada",
				Status:      StatusOnline,
				CursorState: CursorPointer,
			})

			now = 2000
			testutil.AssertEqual(t, "applied", tt.update(r), true)

			p, _ := r.Get("conn")
			tt.check(t, p)
			testutil.AssertEqual(t, "last active", p.LastActiveAt, int64(2000))
		})
	}
}

func TestRegistry_UnknownConnectionIsIgnored(t *testing.T) {
	r := NewRegistry()

	testutil.AssertEqual(t, "position", r.UpdatePosition("ghost", Position{}, nil), false)
	testutil.AssertEqual(t, "status", r.UpdateStatus("ghost", StatusAway), false)
	_, ok := r.UpdateProfile("ghost", ProfilePatch{})
	testutil.AssertEqual(t, "profile", ok, false)
	testutil.AssertEqual(t, "count", r.Count(), 0)
}

func TestRegistry_ReturnedAvatarDoesNotAlias(t *testing.T) {
	r := NewRegistry()
	p := r.Add("conn", "inst", Participant{Avatar: map[string]any{"hat": "red"}})

	p.Avatar["hat"] = "blue"

	got, _ := r.Get("conn")
	testutil.AssertEqual(t, "hat", got.Avatar["hat"], any("red"))
}
