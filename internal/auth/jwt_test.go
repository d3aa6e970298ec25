package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	secret, err := GenerateSecureSecret()
	if err != nil {
		t.Fatalf("Ошибка генерации секрета: %v", err)
	}
	s, err := NewSigner(secret)
	if err != nil {
		t.Fatalf("Ошибка создания подписчика: %v", err)
	}
	return s
}

// TestGenerateJWT тестирует создание JWT токена
func TestGenerateJWT(t *testing.T) {
	s := newTestSigner(t)

	token, err := s.Generate("ops", false, time.Hour)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	// Три части, разделённые точками
	if strings.Count(token, ".") != 2 {
		t.Errorf("Неверный формат JWT токена: %s", token)
	}
}

// TestValidateJWT тестирует валидацию JWT токена
func TestValidateJWT(t *testing.T) {
	s := newTestSigner(t)

	token, err := s.Generate("admin-bot", true, time.Hour)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	claims, err := s.Validate(token)
	if err != nil {
		t.Fatalf("Валидный токен определен как недействительный: %v", err)
	}
	if claims.Operator != "admin-bot" {
		t.Errorf("Неверный оператор: %s", claims.Operator)
	}
	if !claims.IsAdmin {
		t.Error("Потерян флаг администратора")
	}
	if claims.Issuer != Issuer {
		t.Errorf("Неверный издатель: %s", claims.Issuer)
	}
}

// TestValidateInvalidJWT тестирует валидацию недействительного JWT
func TestValidateInvalidJWT(t *testing.T) {
	s := newTestSigner(t)
	other := newTestSigner(t)
	foreign, err := other.Generate("ops", true, time.Hour)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	testCases := []string{
		"invalid.token.here",
		"",
		"not.a.jwt",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
		foreign,
	}

	for _, invalidToken := range testCases {
		claims, err := s.Validate(invalidToken)
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Недействительный токен '%s' прошел валидацию", invalidToken)
		}
		if claims != nil {
			t.Errorf("Для недействительного токена возвращены claims")
		}
	}
}

// TestExpiredJWT проверяет отказ просроченному токену
func TestExpiredJWT(t *testing.T) {
	s := newTestSigner(t)
	issued := time.Now().Add(-2 * time.Hour)
	s.now = func() time.Time { return issued }

	token, err := s.Generate("ops", true, time.Hour)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	s.now = time.Now
	if _, err := s.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Error("Просроченный токен прошел валидацию")
	}
}

// TestForeignIssuerRejected проверяет отказ токену другого издателя с тем же секретом
func TestForeignIssuerRejected(t *testing.T) {
	s := newTestSigner(t)

	claims := &Claims{
		Operator: "ops",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "other-service",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		t.Fatalf("Ошибка подписи: %v", err)
	}
	if _, err := s.Validate(token); err == nil {
		t.Error("Токен чужого издателя прошел валидацию")
	}
}

// TestNewSigner проверяет разбор секрета
func TestNewSigner(t *testing.T) {
	if _, err := NewSigner(""); err != nil {
		t.Errorf("Пустой секрет должен заменяться случайным: %v", err)
	}

	invalidSecrets := []string{
		"too-short",
		"invalid-base64-@#$%",
		"c2hvcnQ=",
	}
	for _, invalidSecret := range invalidSecrets {
		if _, err := NewSigner(invalidSecret); err == nil {
			t.Errorf("Недействительный секрет '%s' был принят", invalidSecret)
		}
	}
}

// TestGenerateSecureSecret тестирует генерацию секретного ключа
func TestGenerateSecureSecret(t *testing.T) {
	secret1, err1 := GenerateSecureSecret()
	secret2, err2 := GenerateSecureSecret()
	if err1 != nil || err2 != nil {
		t.Fatalf("Ошибка генерации секрета: %v %v", err1, err2)
	}
	if secret1 == secret2 {
		t.Error("Два последовательных вызова GenerateSecureSecret вернули одинаковый результат")
	}
	// base64 от 32 байт = 44 символа
	if len(secret1) < 40 {
		t.Error("Секрет слишком короткий")
	}
}
