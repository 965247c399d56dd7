package main

import (
	"strings"

	"github.com/sunshineplan/utils/container"
	"github.com/sunshineplan/utils/txt"
)

func initLimits(file string) *container.Map[string, *limit] {
	accessLogger.Debug("limits: " + file)
	limits := container.NewMap[string, *limit]()
	if rows, err := txt.ReadFile(file); err != nil {
		errorLogger.Println("failed to load limits file:", err)
	} else {
		parseLimits(limits, rows)
	}

	if err := watchFile(
		file,
		func() {
			rows, err := txt.ReadFile(file)
			if err != nil {
				errorLogger.Print(err)
			} else {
				limits.Clear()
				parseLimits(limits, rows)
			}
		},
		limits.Clear,
	); err != nil {
		errorLogger.Print(err)
	}
	return limits
}

// parseLimits reads rows of "username limit". Usernames are Passport
// e-mail names and stored lowercase.
func parseLimits(m *container.Map[string, *limit], s []string) int {
	list := make(map[string]struct{})
	for _, row := range s {
		if i := strings.IndexRune(row, '#'); i != -1 {
			row = row[:i]
		}
		fields := strings.Fields(row)
		if len(fields) == 0 {
			continue
		} else if len(fields) != 2 {
			errorLogger.Println("invalid limit record:", row)
			continue
		}
		name := strings.ToLower(fields[0])
		if _, ok := list[name]; ok {
			errorLogger.Println("duplicate username:", name)
			continue
		}
		limit, err := parseLimit(fields[1])
		if err != nil {
			errorLogger.Println("invalid limit:", fields[1])
			continue
		}
		m.Store(name, limit)
		list[name] = struct{}{}
	}
	accessLogger.Printf("loaded %d user limits", len(list))
	return len(list)
}
