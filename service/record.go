package main

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sunshineplan/utils/container"
	"github.com/sunshineplan/utils/counter"
	"github.com/sunshineplan/utils/scheduler"
	"github.com/sunshineplan/utils/txt"
)

const timeFormat = time.RFC3339Nano

var recordFile string

var recordMap = container.NewMap[user, *record]()

// user is a Passport username or, for whitelist records, an address.
type user struct {
	name      string
	whitelist bool
}

func (u user) String() string {
	if u.whitelist {
		return u.name + "[w]"
	}
	return u.name
}

func parseUser(s string) user {
	if name, found := strings.CutSuffix(s, "[w]"); found {
		return user{name, true}
	}
	return user{s, false}
}

var (
	dayMu sync.Mutex
	day   = time.Now()
)

func checkDayChange() {
	dayMu.Lock()
	defer dayMu.Unlock()

	t := time.Now()
	if day.YearDay() != t.YearDay() {
		newMonth := day.Month() != t.Month() || day.Year() != t.Year()
		recordMap.Range(func(_ user, v *record) bool {
			v.today.Add(-v.today.Get())
			if newMonth {
				v.monthly.Add(-v.monthly.Get())
			}
			return true
		})
		day = t
	}
}

type record struct {
	today, monthly, total counter.Counter
}

func (r *record) writer(w io.Writer) io.Writer {
	return counter.CountWriter(counter.CountWriter(counter.CountWriter(w, &r.total), &r.monthly), &r.today)
}

func store(user user, today, monthly, total int64) *record {
	v := new(record)
	v.today.Add(today)
	v.monthly.Add(monthly)
	v.total.Add(total)
	recordMap.Store(user, v)
	return v
}

func count(user user, w io.Writer) io.Writer {
	if user.name == "" {
		return w
	}
	if v, ok := recordMap.Load(user); ok {
		return v.writer(w)
	}
	return store(user, 0, 0, 0).writer(w)
}

// parseRecord loads rows of "user:today:monthly:total" saved at the time in
// the first row. Daily and monthly counts from an earlier day or month are
// dropped.
func parseRecord(rows []string) {
	if len(rows) == 0 {
		return
	}
	t, err := time.Parse(timeFormat, rows[0])
	if err != nil {
		errorLogger.Print(err)
		return
	}
	now := time.Now()
	sameMonth := t.Year() == now.Year() && t.Month() == now.Month()
	sameDay := sameMonth && t.Day() == now.Day()
	for _, row := range rows[1:] {
		s := strings.Split(row, ":")
		if len(s) != 4 {
			errorLogger.Println("invalid record:", row)
			continue
		}
		var n [3]int64
		for i := range n {
			if n[i], err = strconv.ParseInt(s[i+1], 10, 64); err != nil {
				break
			}
		}
		if err != nil {
			errorLogger.Println(row, err)
			continue
		}
		if !sameDay {
			n[0] = 0
		}
		if !sameMonth {
			n[1] = 0
		}
		store(parseUser(s[0]), n[0], n[1], n[2])
	}
}

func saveRecord() {
	f, err := os.CreateTemp(filepath.Dir(recordFile), ".usage")
	if err != nil {
		errorLogger.Print(err)
		return
	}
	zw := gzip.NewWriter(f)
	fmt.Fprintln(zw, time.Now().Format(timeFormat))
	recordMap.Range(func(u user, v *record) bool {
		fmt.Fprintf(zw, "%s:%d:%d:%d\n", u, v.today.Get(), v.monthly.Get(), v.total.Get())
		return true
	})
	zw.Close()
	f.Close()
	if err := os.Rename(f.Name(), recordFile); err != nil {
		errorLogger.Print(err)
	}
}

func initRecord() {
	accessLogger.Debug("record file: " + recordFile)
	if f, err := os.Open(recordFile); err == nil {
		defer f.Close()
		if zr, err := gzip.NewReader(f); err == nil {
			defer zr.Close()
			if rows, err := txt.ReadAll(zr); err == nil {
				parseRecord(rows)
			} else {
				errorLogger.Print(err)
			}
		} else {
			errorLogger.Print(err)
		}
	} else {
		errorLogger.Print(err)
	}
	if err := scheduler.NewScheduler().At(scheduler.AtMinute(0)).Run(func(scheduler.Event) { saveRecord() }).Start(); err != nil {
		errorLogger.Print(err)
	}
}
