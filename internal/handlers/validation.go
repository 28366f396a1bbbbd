package handlers

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"unveil/internal/models"
	"unveil/internal/utils"
)

var registerOnce sync.Once

// RegisterValidators добавляет в движок gin теги vote_choice и sixdigits.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("vote_choice", func(fl validator.FieldLevel) bool {
			_, ok := models.ParseVoteChoice(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("sixdigits", func(fl validator.FieldLevel) bool {
			return utils.IsValidCode(fl.Field().String())
		})
	})
}
