package main

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/sunshineplan/utils/pool"
	"github.com/sunshineplan/utils/scheduler"
	"github.com/sunshineplan/utils/unit"
)

var usagePool = pool.New[usage]()

type usage struct {
	user                  string
	today, monthly, total unit.ByteSize
}

func (res usage) String(length [3]int) string {
	return fmt.Sprint(
		res.user, strings.Repeat(" ", length[0]-len(res.user)+3),
		res.today, strings.Repeat(" ", length[1]-len(res.today.String())+3),
		res.monthly, strings.Repeat(" ", length[2]-len(res.monthly.String())+3),
		res.total,
	)
}

func writeUsages(w io.Writer) {
	var res []*usage
	recordMap.Range(func(u user, v *record) bool {
		usage := usagePool.Get()
		usage.user = u.String()
		usage.today = unit.ByteSize(v.today.Get())
		usage.monthly = unit.ByteSize(v.monthly.Get())
		usage.total = unit.ByteSize(v.total.Get())
		res = append(res, usage)
		return true
	})

	slices.SortStableFunc(res, func(a, b *usage) int {
		if c := -cmp.Compare(a.today, b.today); c != 0 {
			return c
		}
		if c := -cmp.Compare(a.monthly, b.monthly); c != 0 {
			return c
		}
		if c := -cmp.Compare(a.total, b.total); c != 0 {
			return c
		}
		return cmp.Compare(a.user, b.user)
	})

	length := [3]int{4, 5, 7}
	for _, i := range res {
		length[0] = max(length[0], len(i.user))
		length[1] = max(length[1], len(i.today.String()))
		length[2] = max(length[2], len(i.monthly.String()))
	}

	fmt.Fprint(
		w,
		"user", strings.Repeat(" ", length[0]-1),
		"today", strings.Repeat(" ", length[1]-2),
		"monthly", strings.Repeat(" ", length[2]-4),
		"total\n",
	)
	for _, i := range res {
		fmt.Fprintln(w, i.String(length))
		usagePool.Put(i)
	}
}

var start time.Time

func writeStatus(w io.Writer, s *Server) {
	fmt.Fprintln(w, "Start Time:", start.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(w, "Last Update:", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(w, "Target:", s.target)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Throughput:")
	fmt.Fprintf(w, "Send: %s   Receive: %s\n", unit.ByteSize(s.WriteBytes()), unit.ByteSize(s.ReadBytes()))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Passport Sessions:", s.proxy.Sessions().Len())
	fmt.Fprintln(w)
	writeUsages(w)
}

func saveStatus(s *Server) {
	checkDayChange()

	f, err := os.Create(*status)
	if err != nil {
		errorLogger.Print(err)
		return
	}
	defer f.Close()
	writeStatus(f, s)
}

func initStatus(s *Server) {
	accessLogger.Debug("status: " + *status)
	if _, err := os.Stat(*status); err == nil {
		if err := keepStatus(0); err != nil {
			errorLogger.Print(err)
			return
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		errorLogger.Print(err)
		return
	}

	start = time.Now()
	saveStatus(s)
	if err := scheduler.NewScheduler().At(scheduler.AtSecond(0)).Run(func(scheduler.Event) { saveStatus(s) }).Start(); err != nil {
		errorLogger.Print(err)
	}
}

func keepStatus(n int) (err error) {
	var src string
	if n == 0 {
		src = *status
	} else {
		src = fmt.Sprint(*status, ".", n)
	}
	dst := fmt.Sprint(*status, ".", n+1)
	if n >= *keep {
		return os.Remove(src)
	}
	if _, err = os.Stat(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return
	} else if errors.Is(err, fs.ErrNotExist) {
		return os.Rename(src, dst)
	} else {
		defer func() {
			err = keepStatus(n)
		}()
		return keepStatus(n + 1)
	}
}
