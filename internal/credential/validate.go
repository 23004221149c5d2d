package credential

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"lifesync/internal/syncerr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Decode copies secret credentials into out (a struct with mapstructure and
// validate tags) and checks required fields. Failures are configuration errors
// naming the missing keys.
func Decode(secret *Secret, out any) error {
	service := ""
	var in map[string]any
	if secret != nil {
		service = secret.Service
		in = secret.Credentials
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return syncerr.Configuration(service, "invalid credentials: %v", err)
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			missing := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				missing = append(missing, fe.Field())
			}
			return syncerr.Configuration(service, "missing credentials: %s", strings.Join(missing, ", "))
		}
		return syncerr.Configuration(service, "invalid credentials: %v", err)
	}
	return nil
}
