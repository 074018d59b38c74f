package cmd

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/jmylchreest/releasarr/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

var configDumpEffective bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing releasarr configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

Redirect the output to a file to create a configuration template:

  releasarr config dump > config.yaml

With --effective the loaded configuration is shown instead, after the
config file and RELEASARR_ environment variables are applied. API keys
are redacted.

Environment variables use the RELEASARR_ prefix and underscores for nesting.
Example: server.port -> RELEASARR_SERVER_PORT`,
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE:        runConfigDump,
}

func init() {
	configDumpCmd.Flags().BoolVar(&configDumpEffective, "effective", false, "dump the loaded configuration instead of the defaults")
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags with
// durations in their string form and secrets redacted.
func toMap(v any) map[string]any {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Pointer {
		val = val.Elem()
	}
	typ := val.Type()

	result := make(map[string]any, val.NumField())
	for i := range val.NumField() {
		key := typ.Field(i).Tag.Get("mapstructure")
		if key == "" {
			key = strings.ToLower(typ.Field(i).Name)
		}
		result[key] = toValue(key, val.Field(i))
	}
	return result
}

func toValue(key string, field reflect.Value) any {
	if d, ok := field.Interface().(time.Duration); ok {
		return d.String()
	}

	switch field.Kind() {
	case reflect.Pointer:
		if field.IsNil() {
			return nil
		}
		return toValue(key, field.Elem())
	case reflect.Struct:
		return toMap(field.Interface())
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.Struct {
			return field.Interface()
		}
		items := make([]any, 0, field.Len())
		for i := range field.Len() {
			items = append(items, toMap(field.Index(i).Interface()))
		}
		return items
	case reflect.String:
		if strings.HasSuffix(key, "api_key") && field.String() != "" {
			return redacted
		}
	}
	return field.Interface()
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	var (
		cfg *config.Config
		err error
	)
	if configDumpEffective {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.Defaults()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return writeConfig(cmd.OutOrStdout(), cfg, !configDumpEffective)
}

func writeConfig(w io.Writer, cfg *config.Config, defaults bool) error {
	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Fprintln(w, "# releasarr Configuration File")
	fmt.Fprintln(w, "#")
	if defaults {
		fmt.Fprintln(w, "# All values shown below are defaults.")
	}
	fmt.Fprintln(w, "# Duration format: 30s, 5m, 1h")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w, "# Environment variable overrides:")
	fmt.Fprintln(w, "#   RELEASARR_SERVER_HOST, RELEASARR_SERVER_PORT")
	fmt.Fprintln(w, "#   RELEASARR_DATABASE_DRIVER, RELEASARR_DATABASE_DSN")
	fmt.Fprintln(w, "#   RELEASARR_STORAGE_BASE_DIR, RELEASARR_LOGGING_LEVEL")
	fmt.Fprintln(w)
	_, err = w.Write(yamlData)
	return err
}
