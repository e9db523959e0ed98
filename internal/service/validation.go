package service

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/house-points-api/internal/models"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

// registerDomainValidations adds the enum tags used by intervention and re-entry payloads.
// Field errors are reported under their JSON names.
func registerDomainValidations(v *validator.Validate) {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	enum := func(tag string, allowed ...string) {
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			value := fl.Field().String()
			for _, a := range allowed {
				if value == a {
					return true
				}
			}
			return false
		})
	}

	enum("behavior_kind", string(models.BehaviorMerit), string(models.BehaviorDemerit))
	enum("domain", domainStrings()...)
	enum("level_a_type",
		string(models.LevelAProximity), string(models.LevelANonverbalCue), string(models.LevelAVerbalRedirect),
		string(models.LevelAPositiveNarration), string(models.LevelAChoiceOffer), string(models.LevelABriefReset),
		string(models.LevelASeatChange), string(models.LevelAPrivateConversation))
	enum("level_a_outcome", string(models.LevelAComplied), string(models.LevelAEscalated), string(models.LevelAPartial))
	enum("level_b_trigger", statusStrings(models.LevelBTriggers)...)
	enum("level_c_trigger", statusStrings(models.LevelCTriggers)...)
	enum("case_type", string(models.CaseStandard), string(models.CaseLite), string(models.CaseIntensive))
	enum("admin_response_type",
		string(models.AdminConference), string(models.AdminDetention), string(models.AdminISS),
		string(models.AdminOSS), string(models.AdminRestorative), string(models.AdminOther))
	enum("level_c_outcome",
		string(models.LevelCOutcomeSuccess), string(models.LevelCOutcomeContinuedSupport), string(models.LevelCOutcomeEscalated))
	enum("reentry_source",
		string(models.ReentrySourceLevelB), string(models.ReentrySourceDetention),
		string(models.ReentrySourceISS), string(models.ReentrySourceOSS))
	enum("reentry_outcome",
		string(models.ReentryOutcomeSuccess), string(models.ReentryOutcomePartial), string(models.ReentryOutcomeEscalated))

	_ = v.RegisterValidation("iso_date", func(fl validator.FieldLevel) bool {
		_, err := timeutil.ParseDate(strings.TrimSpace(fl.Field().String()))
		return err == nil
	})
}

func domainStrings() []string {
	return statusStrings(models.DefaultPolicy().Domains())
}

func statusStrings[T ~string](values []T) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}
	return out
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}
