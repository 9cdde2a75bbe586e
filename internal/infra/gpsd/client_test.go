// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gpsd

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestParseReport(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		ok      bool
		accM    float64
		wantLat float64
	}{
		{"3d fix", `{"class":"TPV","mode":3,"time":"2025-03-01T08:15:00.000Z","lat":26.3,"lon":50.1,"epx":12.5,"epy":18.0}`, true, 18, 26.3},
		{"eph only", `{"class":"TPV","mode":2,"lat":1,"lon":2,"eph":30}`, true, 30, 1},
		{"no error estimate", `{"class":"TPV","mode":2,"lat":1,"lon":2}`, true, unknownAccuracyM, 1},
		{"no fix", `{"class":"TPV","mode":1}`, false, 0, 0},
		{"sky report", `{"class":"SKY","satellites":[]}`, false, 0, 0},
		{"garbage", `nope`, false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fix, ok := parseReport([]byte(tt.line))
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.InDelta(t, tt.accM, fix.AccuracyM, 1e-9)
			assert.InDelta(t, tt.wantLat, fix.Coordinates.Lat, 1e-9)
		})
	}
}

func TestClientStreamsFixes(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	watched := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		watched <- line
		_, _ = conn.Write([]byte(strings.Join([]string{
			`{"class":"VERSION","release":"3.25"}`,
			`{"class":"TPV","mode":3,"lat":26.3,"lon":50.1,"epx":4,"epy":5}`,
			`{"class":"TPV","mode":3,"lat":26.4,"lon":50.2,"epx":3,"epy":3}`,
		}, "\n") + "\n"))
		time.Sleep(50 * time.Millisecond)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fixes, err := NewClient(ln.Addr().String()).Fixes(ctx)
	require.NoError(t, err)

	first := <-fixes
	assert.InDelta(t, 5, first.AccuracyM, 1e-9)
	second := <-fixes
	assert.InDelta(t, 26.4, second.Coordinates.Lat, 1e-9)
	assert.Contains(t, <-watched, `?WATCH={"enable":true`)

	for range fixes {
	}
}

func TestClientDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = NewClient(addr).Fixes(context.Background())
	assert.Error(t, err)
}
