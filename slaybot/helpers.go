package slaybot

import (
	"log/slog"
	"reflect"

	"github.com/bwmarrin/discordgo"
)

// getDiscordUser returns the user for the given interaction. Guild
// interactions carry the user inside Member; DM interactions carry it
// directly.
func getDiscordUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i == nil {
		return nil
	}
	switch {
	case i.User != nil:
		return i.User
	case i.Member != nil:
		return i.Member.User
	default:
		return nil
	}
}

// discordInteractionOptions maps an application command's options by name.
func discordInteractionOptions(
	i *discordgo.InteractionCreate,
) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	data := i.ApplicationCommandData()
	options := data.Options
	optionMap := make(
		map[string]*discordgo.ApplicationCommandInteractionDataOption,
		len(options),
	)
	for _, opt := range options {
		optionMap[opt.Name] = opt
	}
	return optionMap
}

// truncate shortens the given string to at most maxLen runes, so outgoing
// messages stay under discord's length cap.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

// stringPointerValue dereferences s, returning empty string for nil.
func stringPointerValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// structToSlogValue converts a struct to a [slog.Value], honoring `log`
// struct tags: a tag value of "-" omits the field entirely, any other
// value (e.g. "[redacted]") replaces the field's value in the output.
// Nil pointers are rendered as a null attribute.
func structToSlogValue(v any) slog.Value {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return slog.AnyValue(nil)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return slog.AnyValue(v)
	}
	rt := rv.Type()

	attrs := make([]slog.Attr, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		logTag := field.Tag.Get("log")
		if logTag == "-" {
			continue
		}

		name := field.Name
		if logTag != "" {
			attrs = append(attrs, slog.String(name, logTag))
			continue
		}

		fieldValue := rv.Field(i)
		if fieldValue.Kind() == reflect.Ptr && fieldValue.IsNil() {
			attrs = append(attrs, slog.Any(name, nil))
			continue
		}
		attrs = append(attrs, slog.Any(name, fieldValue.Interface()))
	}
	return slog.GroupValue(attrs...)
}
