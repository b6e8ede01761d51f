package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
)

var guildCols = []string{"id", "guild_id", "prefix", "repeat_enabled"}

func TestAddGuildThenGuildInfo(t *testing.T) {
	s, mock, _ := newTestStore(t)

	mock.ExpectExec(q(`INSERT INTO guilds (guild_id, prefix, repeat_enabled) VALUES (?, '', FALSE)`)).
		WithArgs(uint64(1001)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(q(`SELECT id, guild_id, prefix, repeat_enabled FROM guilds WHERE guild_id = ?`)).
		WithArgs(uint64(1001)).
		WillReturnRows(sqlmock.NewRows(guildCols).AddRow(int64(1), int64(1001), "", false))

	ctx := context.Background()
	if !s.AddGuild(ctx, 1001) {
		t.Fatalf("AddGuild = false")
	}
	got := s.GuildInfo(ctx, 1001)
	if got.IsEmpty() {
		t.Fatalf("GuildInfo returned the empty sentinel")
	}
	if got.GuildID != 1001 || got.RepeatEnabled || got.Prefix != "" {
		t.Fatalf("GuildInfo = %+v", got)
	}
	expectationsMet(t, mock)
}

func TestGuildInfoNotFound(t *testing.T) {
	s, mock, logs := newTestStore(t)

	mock.ExpectQuery(q(`SELECT id, guild_id, prefix, repeat_enabled FROM guilds WHERE guild_id = ?`)).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows(guildCols))

	got := s.GuildInfo(context.Background(), 5)
	if !got.IsEmpty() {
		t.Fatalf("GuildInfo = %+v, want empty sentinel", got)
	}
	if got != EmptyGuild() {
		t.Fatalf("GuildInfo = %+v, want %+v", got, EmptyGuild())
	}
	if logs.FilterMessage("guild not found").Len() != 1 {
		t.Errorf("missing not-found log entry")
	}
	expectationsMet(t, mock)
}

func TestGuildInfoDatabaseDown(t *testing.T) {
	s, _ := newDownStore(t)
	if got := s.GuildInfo(context.Background(), 5); !got.IsEmpty() {
		t.Fatalf("GuildInfo = %+v, want empty sentinel", got)
	}
}

func TestLookupGuildDistinguishesMissingFromDown(t *testing.T) {
	s, mock, _ := newTestStore(t)
	mock.ExpectQuery(q(`FROM guilds WHERE guild_id = ?`)).
		WillReturnRows(sqlmock.NewRows(guildCols))

	if _, err := s.LookupGuild(context.Background(), 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LookupGuild err = %v, want ErrNotFound", err)
	}

	down, _ := newDownStore(t)
	_, err := down.LookupGuild(context.Background(), 9)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("LookupGuild err = %v, want connection error", err)
	}
	expectationsMet(t, mock)
}

func TestAddGuildDuplicate(t *testing.T) {
	s, mock, logs := newTestStore(t)

	mock.ExpectExec(q(`INSERT INTO guilds`)).
		WithArgs(uint64(1001)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1001' for key 'guild_id'"})

	if s.AddGuild(context.Background(), 1001) {
		t.Fatalf("AddGuild = true for a duplicate")
	}
	if logs.FilterMessage("failed to add guild").Len() != 1 {
		t.Errorf("missing failure log entry")
	}
	expectationsMet(t, mock)
}

func TestClassifyDuplicate(t *testing.T) {
	err := classify(&mysql.MySQLError{Number: 1062})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("classify(1062) = %v, want ErrDuplicate", err)
	}
	if other := classify(&mysql.MySQLError{Number: 1045}); errors.Is(other, ErrDuplicate) {
		t.Fatalf("classify(1045) reported a duplicate")
	}
	if classify(nil) != nil {
		t.Fatalf("classify(nil) != nil")
	}
}

func TestRemoveGuildCascades(t *testing.T) {
	s, mock, _ := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(q(`DELETE FROM guilds WHERE guild_id = ?`)).
		WithArgs(uint64(77)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q(`SELECT id FROM playlists WHERE guild_id = ? FOR UPDATE`)).
		WithArgs(uint64(77)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec(q(`DELETE FROM tracks WHERE playlist_id IN (?)`)).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(`DELETE FROM playlists WHERE guild_id = ?`)).
		WithArgs(uint64(77)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(q(`SELECT id FROM playlists WHERE guild_id = ? ORDER BY id`)).
		WithArgs(uint64(77)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ctx := context.Background()
	if !s.RemoveGuild(ctx, 77) {
		t.Fatalf("RemoveGuild = false")
	}
	for id := range s.AllPlaylistIDs(ctx, 77) {
		t.Fatalf("playlist %d survived guild removal", id)
	}
	expectationsMet(t, mock)
}

func TestRemoveGuildRollsBack(t *testing.T) {
	s, mock, _ := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(q(`DELETE FROM guilds WHERE guild_id = ?`)).
		WithArgs(uint64(77)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q(`SELECT id FROM playlists WHERE guild_id = ?`)).
		WithArgs(uint64(77)).
		WillReturnError(errors.New("lock wait timeout exceeded"))
	mock.ExpectRollback()

	if s.RemoveGuild(context.Background(), 77) {
		t.Fatalf("RemoveGuild = true after a failed cascade")
	}
	expectationsMet(t, mock)
}

func TestAllGuildsIsRestartable(t *testing.T) {
	s, mock, _ := newTestStore(t)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(q(`SELECT id, guild_id, prefix, repeat_enabled FROM guilds ORDER BY id`)).
			WillReturnRows(sqlmock.NewRows(guildCols).
				AddRow(int64(1), int64(10), "!", false).
				AddRow(int64(2), int64(20), "", true))
	}

	seq := s.AllGuilds(context.Background())
	var first, second []GuildRecord
	for g := range seq {
		first = append(first, g)
	}
	for g := range seq {
		second = append(second, g)
	}

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("got %d then %d guilds, want 2 and 2", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("pass mismatch at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
	if first[0].Prefix != "!" || !first[1].RepeatEnabled {
		t.Fatalf("unexpected rows: %+v", first)
	}
	expectationsMet(t, mock)
}

func TestAllGuildsStopsEarly(t *testing.T) {
	s, mock, logs := newTestStore(t)

	mock.ExpectQuery(q(`FROM guilds ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows(guildCols).
			AddRow(int64(1), int64(10), "", false).
			AddRow(int64(2), int64(20), "", false))

	for range s.AllGuilds(context.Background()) {
		break
	}
	if logs.FilterMessage("stopped AllGuilds early").Len() != 1 {
		t.Errorf("missing early-stop log entry")
	}
	expectationsMet(t, mock)
}

func TestAllGuildsDatabaseDown(t *testing.T) {
	s, _ := newDownStore(t)
	for g := range s.AllGuilds(context.Background()) {
		t.Fatalf("yielded %+v with database down", g)
	}
}

func TestPrefix(t *testing.T) {
	s, mock, _ := newTestStore(t)

	mock.ExpectQuery(q(`SELECT prefix FROM guilds WHERE guild_id = ?`)).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"prefix"}).AddRow("?"))
	mock.ExpectQuery(q(`SELECT prefix FROM guilds WHERE guild_id = ?`)).
		WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"prefix"}).AddRow(""))
	mock.ExpectQuery(q(`SELECT prefix FROM guilds WHERE guild_id = ?`)).
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"prefix"}))

	ctx := context.Background()
	if p, ok := s.Prefix(ctx, 1); !ok || p != "?" {
		t.Errorf("Prefix(1) = %q, %v", p, ok)
	}
	if p, ok := s.Prefix(ctx, 2); ok || p != "" {
		t.Errorf("Prefix(2) = %q, %v, want no value", p, ok)
	}
	if p, ok := s.Prefix(ctx, 3); ok || p != "" {
		t.Errorf("Prefix(3) = %q, %v, want no value", p, ok)
	}
	expectationsMet(t, mock)
}

func TestSetPrefix(t *testing.T) {
	s, mock, _ := newTestStore(t)

	mock.ExpectExec(q(`INSERT INTO guilds (guild_id, prefix, repeat_enabled) VALUES (?, ?, FALSE) ON DUPLICATE KEY UPDATE prefix = VALUES(prefix)`)).
		WithArgs(uint64(1), "m!").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(q(`ON DUPLICATE KEY UPDATE prefix = VALUES(prefix)`)).
		WithArgs(uint64(1), "").
		WillReturnResult(sqlmock.NewResult(0, 2))

	ctx := context.Background()
	if !s.SetPrefix(ctx, 1, "m!") {
		t.Errorf("SetPrefix(m!) = false")
	}
	if !s.SetPrefix(ctx, 1, "") {
		t.Errorf("SetPrefix(\"\") = false, want clear")
	}
	if s.SetPrefix(ctx, 1, "much-too-long") {
		t.Errorf("SetPrefix accepted a 13-character prefix")
	}
	expectationsMet(t, mock)
}

func TestRepeat(t *testing.T) {
	s, mock, _ := newTestStore(t)

	mock.ExpectExec(q(`ON DUPLICATE KEY UPDATE repeat_enabled = VALUES(repeat_enabled)`)).
		WithArgs(uint64(4), true).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(q(`SELECT repeat_enabled FROM guilds WHERE guild_id = ?`)).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"repeat_enabled"}).AddRow(true))
	mock.ExpectQuery(q(`SELECT repeat_enabled FROM guilds WHERE guild_id = ?`)).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"repeat_enabled"}))

	ctx := context.Background()
	if !s.SetRepeat(ctx, 4, true) {
		t.Fatalf("SetRepeat = false")
	}
	if !s.Repeat(ctx, 4) {
		t.Errorf("Repeat(4) = false, want true")
	}
	if s.Repeat(ctx, 5) {
		t.Errorf("Repeat(5) = true for a missing guild")
	}
	expectationsMet(t, mock)
}

func TestNewPrefix(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"", false},
		{"!", true},
		{"0123456789", true},
		{"01234567890", false},
		{"éééééééééé", true},
	}
	for _, tc := range cases {
		p, err := NewPrefix(tc.in)
		if (err == nil) != tc.ok {
			t.Errorf("NewPrefix(%q) err = %v, want ok=%v", tc.in, err, tc.ok)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidPrefix) {
			t.Errorf("NewPrefix(%q) err = %v, want ErrInvalidPrefix", tc.in, err)
		}
		if tc.ok && p.String() != tc.in {
			t.Errorf("NewPrefix(%q).String() = %q", tc.in, p.String())
		}
	}
}
