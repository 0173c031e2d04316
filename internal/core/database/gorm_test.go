package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalizeMySQLDSN(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		user, pass string
		want       string
	}{
		{
			name: "driver dsn untouched",
			in:   "root:pw@tcp(127.0.0.1:3306)/app?parseTime=true",
			want: "root:pw@tcp(127.0.0.1:3306)/app?parseTime=true",
		},
		{
			name: "url with credentials",
			in:   "mysql://root:pw@db:3306/app",
			want: "root:pw@tcp(db:3306)/app?charset=utf8mb4&parseTime=true",
		},
		{
			name: "jdbc params adapted",
			in:   "jdbc:mysql://db:3306/app?useUnicode=true&characterEncoding=latin1&useSSL=false&serverTimezone=UTC",
			user: "svc",
			pass: "secret",
			want: "svc:secret@tcp(db:3306)/app?charset=latin1&loc=UTC&parseTime=true&tls=false",
		},
		{
			name: "query credentials",
			in:   "mysql://db/app?user=u&password=p",
			want: "u:p@tcp(db)/app?charset=utf8mb4&parseTime=true",
		},
		{
			name: "override beats url",
			in:   "mysql://a:b@db/app",
			user: "c",
			want: "c:b@tcp(db)/app?charset=utf8mb4&parseTime=true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeMySQLDSN(tt.in, tt.user, tt.pass))
		})
	}
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "root:****@tcp(db)/app", maskDSN("root:pw@tcp(db)/app"))
	assert.Equal(t, "tcp(db)/app", maskDSN("tcp(db)/app"))
}

func TestNewGorm_SQLite(t *testing.T) {
	db, err := NewGorm(Opts{Driver: "sqlite", DSN: "file:gormtest?mode=memory&cache=shared", Log: zap.NewNop()})
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestNewGorm_UnsupportedDriver(t *testing.T) {
	_, err := NewGorm(Opts{Driver: "oracle"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}
