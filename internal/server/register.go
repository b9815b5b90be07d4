package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"obralog/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ctypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

func (s *Service) handleGetRegister(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data := &types.RegisterPageData{
		BasePageData: types.BasePageData{Title: "Criar conta"},
	}
	if s.identity == nil {
		data.Error = "Cadastro indisponível: provedor de identidade não configurado."
	}

	if err := s.renderTemplate(w, r, "page.register", data); err != nil {
		s.logger.WithError(err).Error("failed to render register page")
		s.internalServerError(w)
	}
}

func (s *Service) handlePostRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	givenName := strings.TrimSpace(r.FormValue("given_name"))
	familyName := strings.TrimSpace(r.FormValue("family_name"))
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	confirmPassword := r.FormValue("confirm_password")

	data := &types.RegisterPageData{
		BasePageData: types.BasePageData{Title: "Criar conta"},
		GivenName:    givenName,
		FamilyName:   familyName,
		Email:        email,
	}

	if s.identity == nil {
		data.Error = "Cadastro indisponível: provedor de identidade não configurado."
		s.renderRegister(w, r, http.StatusServiceUnavailable, data)
		return
	}

	data.FieldErrors = validateRegisterInput(givenName, familyName, email, password, confirmPassword)
	if len(data.FieldErrors) > 0 {
		s.logger.WithField("field_errors", data.FieldErrors).Info("validation errors during registration")

		data.Error = "Corrija os campos destacados."
		s.renderRegister(w, r, http.StatusBadRequest, data)
		return
	}

	_, err := s.identity.SignUp(ctx, &cognitoidentityprovider.SignUpInput{
		ClientId: aws.String(s.config.CognitoClientID),
		Username: aws.String(email),
		Password: aws.String(password),
		UserAttributes: []ctypes.AttributeType{
			{Name: aws.String("email"), Value: aws.String(email)},
			{Name: aws.String("given_name"), Value: aws.String(givenName)},
			{Name: aws.String("family_name"), Value: aws.String(familyName)},
		},
	})
	if err != nil {
		s.logger.WithError(err).Error("failed to signup user")

		data.Error, data.FieldErrors = s.mapCognitoSignUpError(err)
		s.renderRegister(w, r, http.StatusBadRequest, data)
		return
	}

	v := url.Values{}
	v.Set("email", email)

	http.Redirect(w, r, fmt.Sprintf("/register/confirm?%s", v.Encode()), http.StatusSeeOther)
}

func (s *Service) renderRegister(w http.ResponseWriter, r *http.Request, status int, data *types.RegisterPageData) {
	s.renderStatus(w, r, status, "page.register", data)
}

func (s *Service) handleGetRegisterConfirm(w http.ResponseWriter, r *http.Request) {
	data := &types.ConfirmRegisterPageData{
		BasePageData: types.BasePageData{Title: "Confirme sua conta"},
		Email:        strings.TrimSpace(r.URL.Query().Get("email")),
		Message:      "Enviamos um código de confirmação para o seu email.",
	}

	if err := s.renderTemplate(w, r, "page.register.confirm", data); err != nil {
		s.logger.WithError(err).Error("failed to render register confirm page")
		s.internalServerError(w)
	}
}

func (s *Service) handlePostRegisterConfirm(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	code := strings.TrimSpace(r.FormValue("code"))

	data := &types.ConfirmRegisterPageData{
		BasePageData: types.BasePageData{Title: "Confirme sua conta"},
		Email:        email,
	}

	if s.identity == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	_, err := s.identity.ConfirmSignUp(r.Context(), &cognitoidentityprovider.ConfirmSignUpInput{
		ClientId:         aws.String(s.config.CognitoClientID),
		Username:         aws.String(email),
		ConfirmationCode: aws.String(code),
	})
	if err != nil {
		s.logger.WithError(err).Error("failed to confirm user signup")

		var codeMismatch *ctypes.CodeMismatchException
		if errors.As(err, &codeMismatch) {
			data.Error = "Código de confirmação inválido. Verifique e tente novamente."
		} else {
			data.Error = "Não foi possível confirmar a conta. Tente novamente."
		}

		s.renderStatus(w, r, http.StatusBadRequest, "page.register.confirm", data)
		return
	}

	http.Redirect(w, r, "/login?confirmed=true", http.StatusSeeOther)
}

var (
	hasUpperReg  = regexp.MustCompile(`[A-Z]`)
	hasLowerReg  = regexp.MustCompile(`[a-z]`)
	hasDigitReg  = regexp.MustCompile(`[0-9]`)
	hasSymbolReg = regexp.MustCompile(`[^A-Za-z0-9]`)
)

func validateRegisterInput(givenName, familyName, email, password, confirmPassword string) map[string]string {
	errs := map[string]string{}

	if strings.TrimSpace(givenName) == "" {
		errs["given_name"] = "Nome é obrigatório."
	}

	if strings.TrimSpace(familyName) == "" {
		errs["family_name"] = "Sobrenome é obrigatório."
	}

	email = strings.TrimSpace(email)
	if email == "" {
		errs["email"] = "Email é obrigatório."
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs["email"] = "Informe um email válido."
	}

	if password != confirmPassword {
		errs["confirm_password"] = "As senhas não conferem."
	}

	strong := hasUpperReg.MatchString(password) &&
		hasLowerReg.MatchString(password) &&
		hasDigitReg.MatchString(password) &&
		hasSymbolReg.MatchString(password)

	if len(password) < 12 || !strong {
		errs["password"] = "A senha deve ter ao menos 12 caracteres com maiúscula, minúscula, número e símbolo."
	}

	return errs
}

func (s *Service) mapCognitoSignUpError(err error) (string, map[string]string) {
	fieldErrs := map[string]string{}

	var invalidPw *ctypes.InvalidPasswordException
	if errors.As(err, &invalidPw) {
		fieldErrs["password"] = "A senha não atende aos requisitos mínimos."
		return "Corrija os campos destacados.", fieldErrs
	}

	var userExists *ctypes.UsernameExistsException
	if errors.As(err, &userExists) {
		fieldErrs["email"] = "Já existe uma conta com este email."
		return "Tente entrar com sua conta.", fieldErrs
	}

	var invalidParam *ctypes.InvalidParameterException
	if errors.As(err, &invalidParam) {
		return "Alguns dados são inválidos. Revise e tente novamente.", fieldErrs
	}

	s.logger.WithError(err).Error("unhandled cognito signup error")

	return "Não foi possível criar a conta agora. Tente novamente.", fieldErrs
}
