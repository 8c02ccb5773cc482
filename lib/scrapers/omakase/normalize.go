package omakase

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// The upstream slot API has no published schema and has been observed in
// several shapes. Normalization therefore never fails: unknown shapes and
// malformed entries degrade to fewer (or zero) slots, with enough logging
// to notice when the contract drifts.

// Ordered alias lists for each logical slot field, first match wins.
// These are guesses against an unconfirmed schema, extend them once the
// live API pins one down.
var (
	DateKeys       = []string{"date", "day", "booking_date", "reservation_date"}
	TimeKeys       = []string{"time", "start_time", "booking_time", "reservation_time"}
	PriceKeys      = []string{"price", "amount", "cost", "price_amount"}
	BookingURLKeys = []string{"booking_url", "url", "link", "reservation_url", "booking_link"}
	SeatKeys       = []string{"available_seats", "seats", "capacity", "available"}
)

// WrapperKeys are scanned, in order, on object responses before falling
// back to treating the whole object as a date-grouped mapping.
var WrapperKeys = []string{"slots", "data", "time_slots", "availability", "online_stock_groups"}

var dateFormats = []string{"2006-01-02", "2006/01/02", "20060102", "02-01-2006", "02/01/2006"}
var timeFormats = []string{"15:04", "15:04:05", "3:04 PM", "1504"}

// ParseSlots decodes a raw response body and normalizes it. A body that
// is not JSON at all yields an empty result, not an error.
func ParseSlots(body []byte) []TimeSlot {
	if len(body) == 0 {
		return nil
	}
	var raw any
	err := json.Unmarshal(body, &raw)
	if err != nil {
		slog.Error("failed to parse slot response body", "err", err)
		return nil
	}
	return Normalize(raw)
}

// Normalize converts a decoded JSON value of any supported shape into
// canonical time slots.
func Normalize(raw any) []TimeSlot {
	switch v := raw.(type) {
	case nil:
		slog.Info("slot response is empty")
		return nil
	case []any:
		return parseSlotList(v)
	case map[string]any:
		for _, key := range WrapperKeys {
			inner, ok := v[key]
			if !ok {
				continue
			}
			switch data := inner.(type) {
			case []any:
				return parseSlotList(data)
			case map[string]any:
				return parseGrouped(data)
			}
		}
		return parseGrouped(v)
	default:
		slog.Warn("unexpected slot response shape", "type", typeName(raw))
		return nil
	}
}

func parseSlotList(entries []any) []TimeSlot {
	var slots []TimeSlot
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			slog.Warn("skipping non-object slot entry")
			continue
		}
		slot, ok := parseSlot(obj)
		if ok {
			slots = append(slots, slot)
		}
	}
	slog.Debug("parsed slot list", "count", len(slots))
	return slots
}

func parseGrouped(grouped map[string]any) []TimeSlot {
	var slots []TimeSlot
	for dateKey, value := range grouped {
		if !looksLikeDate(dateKey) {
			slog.Debug("skipping non-date key", "key", dateKey)
			continue
		}
		entries, ok := value.([]any)
		if !ok {
			slog.Warn("expected slot list under date key", "date", dateKey)
			continue
		}
		for _, entry := range entries {
			obj, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			// entries grouped under a date key usually omit their own
			// date field, inject the key as the highest-priority alias
			if _, exists := obj["date"]; !exists {
				obj["date"] = dateKey
			}
			slot, ok := parseSlot(obj)
			if ok {
				slots = append(slots, slot)
			}
		}
	}
	slog.Debug("parsed grouped slots", "count", len(slots))
	return slots
}

// parseSlot extracts one slot. Date and time are the only hard
// requirements, anything else that fails to coerce is simply absent.
func parseSlot(obj map[string]any) (TimeSlot, bool) {
	date, ok := lookupString(obj, DateKeys)
	if !ok {
		slog.Debug("dropping slot missing date or time")
		return TimeSlot{}, false
	}
	slotTime, ok := lookupString(obj, TimeKeys)
	if !ok {
		slog.Debug("dropping slot missing date or time")
		return TimeSlot{}, false
	}

	slot := TimeSlot{
		Date: normalizeDate(date),
		Time: normalizeTime(slotTime),
	}
	if price, ok := lookupInt(obj, PriceKeys); ok {
		slot.Price = price
	}
	if u, ok := lookupString(obj, BookingURLKeys); ok {
		slot.BookingURL = u
	}
	if seats, ok := lookupInt(obj, SeatKeys); ok {
		slot.AvailableSeats = seats
	}
	return slot, true
}

func lookupString(obj map[string]any, keys []string) (string, bool) {
	for _, key := range keys {
		value, ok := obj[key]
		if !ok {
			continue
		}
		s := asString(value)
		if s != "" {
			return s, true
		}
	}
	return "", false
}

func lookupInt(obj map[string]any, keys []string) (int, bool) {
	for _, key := range keys {
		value, ok := obj[key]
		if !ok {
			continue
		}
		n, ok := asInt(value)
		if ok && n >= 0 {
			return n, true
		}
	}
	return 0, false
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return ""
	}
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// normalizeDate coerces to YYYY-MM-DD, passing unrecognized strings
// through with a warning so an upstream format change is visible in logs
// before it silently breaks diffing.
func normalizeDate(date string) string {
	date = strings.TrimSpace(date)
	if len(date) == 10 && date[4] == '-' && date[7] == '-' {
		return date
	}
	for _, format := range dateFormats {
		parsed, err := time.Parse(format, date)
		if err == nil {
			return parsed.Format("2006-01-02")
		}
	}
	slog.Warn("could not normalize slot date", "date", date)
	return date
}

// normalizeTime coerces to 24-hour HH:MM, seconds truncated.
func normalizeTime(t string) string {
	t = strings.TrimSpace(t)
	if len(t) == 5 && t[2] == ':' {
		return t
	}
	if len(t) == 8 && t[2] == ':' && t[5] == ':' {
		return t[:5]
	}
	for _, format := range timeFormats {
		parsed, err := time.Parse(format, t)
		if err == nil {
			return parsed.Format("15:04")
		}
	}
	slog.Warn("could not normalize slot time", "time", t)
	return t
}

// looksLikeDate is a cheap heuristic for deciding whether a map key names
// a calendar date, covering separators used by the site's Japanese UI.
func looksLikeDate(s string) bool {
	hasDigit := false
	for _, r := range s {
		if r >= '0' && r <= '9' {
			hasDigit = true
			break
		}
	}
	if !hasDigit {
		return false
	}
	if strings.ContainsAny(s, "-/") || strings.ContainsRune(s, '年') ||
		strings.ContainsRune(s, '月') || strings.ContainsRune(s, '日') {
		return true
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func typeName(v any) string {
	switch v.(type) {
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	default:
		return "unknown"
	}
}
