// Package swagger holds the OpenAPI document served at /docs.
// Regenerate it from the handler annotations with go generate.
package swagger

//go:generate swag init -d ../../.. -g cmd/api/main.go -o . --packageName swagger --parseInternal

import "github.com/swaggo/swag"

const docTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {
		"description": "{{escape .Description}}",
		"title": "{{.Title}}",
		"contact": {},
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/healthz": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Health"
				],
				"summary": "Service health check",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handlers.HealthResponse"
						}
					}
				}
			}
		},
		"/readyz": {
			"get": {
				"description": "Pings every registered dependency and answers 503 if any fails.",
				"produces": [
					"application/json"
				],
				"tags": [
					"Health"
				],
				"summary": "Dependency readiness check",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handlers.ReadyResponse"
						}
					},
					"503": {
						"description": "Service Unavailable",
						"schema": {
							"$ref": "#/definitions/handlers.ReadyResponse"
						}
					}
				}
			}
		},
		"/filters/stats": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Health"
				],
				"summary": "Membership filter sizing and fill",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handlers.FilterStatsResponse"
						}
					}
				}
			}
		},
		"/{realm}/create": {
			"post": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"Users"
				],
				"summary": "Register a new account in the realm",
				"parameters": [
					{
						"enum": [
							"User1",
							"User2"
						],
						"type": "string",
						"description": "Realm name",
						"name": "realm",
						"in": "path",
						"required": true
					},
					{
						"description": "Registration request",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handlers.CreateUserRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "Created",
						"schema": {
							"$ref": "#/definitions/handlers.CreateUserResponse"
						}
					},
					"409": {
						"description": "Conflict",
						"schema": {
							"$ref": "#/definitions/handlers.ConflictResponse"
						}
					},
					"422": {
						"description": "Unprocessable Entity",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"500": {
						"description": "Internal Server Error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/{realm}/get": {
			"get": {
				"security": [
					{
						"Bearer": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"Users"
				],
				"summary": "Return the caller's profile",
				"parameters": [
					{
						"enum": [
							"User1",
							"User2"
						],
						"type": "string",
						"description": "Realm name",
						"name": "realm",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handlers.UserProfile"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"403": {
						"description": "Forbidden",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/{realm}/login": {
			"post": {
				"consumes": [
					"application/json",
					"application/x-www-form-urlencoded"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"Users"
				],
				"summary": "Exchange credentials for a session token",
				"parameters": [
					{
						"enum": [
							"User1",
							"User2"
						],
						"type": "string",
						"description": "Realm name",
						"name": "realm",
						"in": "path",
						"required": true
					},
					{
						"description": "Credentials",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handlers.LoginRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handlers.LoginResponse"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"403": {
						"description": "Forbidden",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/{realm}/logout": {
			"post": {
				"security": [
					{
						"Bearer": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"Users"
				],
				"summary": "Revoke the presented session token",
				"parameters": [
					{
						"enum": [
							"User1",
							"User2"
						],
						"type": "string",
						"description": "Realm name",
						"name": "realm",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handlers.MessageResponse"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"500": {
						"description": "Internal Server Error",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/{realm}/verify": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Users"
				],
				"summary": "Redeem the email verification link",
				"parameters": [
					{
						"enum": [
							"User1",
							"User2"
						],
						"type": "string",
						"description": "Realm name",
						"name": "realm",
						"in": "path",
						"required": true
					},
					{
						"type": "string",
						"description": "Verification token",
						"name": "token",
						"in": "query",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handlers.MessageResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/{realm}/forget_password": {
			"post": {
				"consumes": [
					"application/json",
					"application/x-www-form-urlencoded"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"Password"
				],
				"summary": "Send a password reset link",
				"parameters": [
					{
						"enum": [
							"User1",
							"User2"
						],
						"type": "string",
						"description": "Realm name",
						"name": "realm",
						"in": "path",
						"required": true
					},
					{
						"description": "Account email",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handlers.ForgetPasswordRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handlers.MessageResponse"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"422": {
						"description": "Unprocessable Entity",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/{realm}/reset_password_form": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"Password"
				],
				"summary": "Check that a reset token is still redeemable",
				"parameters": [
					{
						"enum": [
							"User1",
							"User2"
						],
						"type": "string",
						"description": "Realm name",
						"name": "realm",
						"in": "path",
						"required": true
					},
					{
						"type": "string",
						"description": "Reset token",
						"name": "token",
						"in": "query",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handlers.ResetFormResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/{realm}/reset_password": {
			"post": {
				"description": "The token may also arrive as a query parameter, as it does in emailed links.",
				"consumes": [
					"application/json",
					"application/x-www-form-urlencoded"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"Password"
				],
				"summary": "Replace the password using a reset token",
				"parameters": [
					{
						"enum": [
							"User1",
							"User2"
						],
						"type": "string",
						"description": "Realm name",
						"name": "realm",
						"in": "path",
						"required": true
					},
					{
						"description": "Reset request",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handlers.ResetPasswordRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handlers.MessageResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/{realm}/delete": {
			"delete": {
				"security": [
					{
						"Bearer": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"Users"
				],
				"summary": "Delete the caller's own account",
				"parameters": [
					{
						"enum": [
							"User1",
							"User2"
						],
						"type": "string",
						"description": "Realm name",
						"name": "realm",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handlers.MessageResponse"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/{realm}/otp_phone": {
			"post": {
				"security": [
					{
						"Bearer": []
					}
				],
				"description": "Uses the stored phone number unless one is supplied.",
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"OTP"
				],
				"summary": "Text a one-time code to the caller",
				"parameters": [
					{
						"enum": [
							"User1",
							"User2"
						],
						"type": "string",
						"description": "Realm name",
						"name": "realm",
						"in": "path",
						"required": true
					},
					{
						"description": "Destination override",
						"name": "request",
						"in": "body",
						"required": false,
						"schema": {
							"$ref": "#/definitions/handlers.OTPRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handlers.OTPResponse"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		},
		"/{realm}/verify_otp_phone": {
			"post": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"OTP"
				],
				"summary": "Check a texted code against its token",
				"parameters": [
					{
						"enum": [
							"User1",
							"User2"
						],
						"type": "string",
						"description": "Realm name",
						"name": "realm",
						"in": "path",
						"required": true
					},
					{
						"description": "Token and code",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handlers.VerifyOTPRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handlers.VerifyOTPResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					},
					"422": {
						"description": "Unprocessable Entity",
						"schema": {
							"$ref": "#/definitions/handlers.ErrorResponse"
						}
					}
				}
			}
		}
	},
	"definitions": {
		"bloom.FilterStats": {
			"type": "object",
			"properties": {
				"name": {
					"type": "string"
				},
				"capacity": {
					"type": "integer"
				},
				"error_rate": {
					"type": "number"
				},
				"approximate_count": {
					"type": "integer"
				},
				"inserts": {
					"type": "integer"
				},
				"bit_size": {
					"type": "integer"
				},
				"hash_count": {
					"type": "integer"
				}
			}
		},
		"handlers.ErrorResponse": {
			"type": "object",
			"properties": {
				"error": {
					"type": "string"
				},
				"detail": {
					"type": "string"
				},
				"fields": {
					"type": "object",
					"additionalProperties": {
						"type": "string"
					}
				},
				"trace_id": {
					"type": "string"
				}
			}
		},
		"handlers.MessageResponse": {
			"type": "object",
			"properties": {
				"message": {
					"type": "string"
				}
			}
		},
		"handlers.CreateUserRequest": {
			"type": "object",
			"required": [
				"email",
				"first_name",
				"password"
			],
			"properties": {
				"first_name": {
					"type": "string",
					"maxLength": 100
				},
				"last_name": {
					"type": "string",
					"maxLength": 100
				},
				"email": {
					"type": "string",
					"maxLength": 254
				},
				"phone": {
					"type": "string",
					"maxLength": 15,
					"minLength": 4
				},
				"country_code": {
					"type": "string",
					"maxLength": 5
				},
				"password": {
					"type": "string",
					"maxLength": 128,
					"minLength": 8
				}
			}
		},
		"handlers.CreateUserResponse": {
			"type": "object",
			"properties": {
				"message": {
					"type": "string"
				},
				"id": {
					"type": "string"
				}
			}
		},
		"handlers.ConflictResponse": {
			"type": "object",
			"properties": {
				"message": {
					"type": "string"
				},
				"email": {
					"type": "string"
				}
			}
		},
		"handlers.LoginRequest": {
			"type": "object",
			"required": [
				"email",
				"password"
			],
			"properties": {
				"email": {
					"type": "string"
				},
				"password": {
					"type": "string"
				}
			}
		},
		"handlers.LoginResponse": {
			"type": "object",
			"properties": {
				"access_token": {
					"type": "string"
				},
				"token_type": {
					"type": "string"
				}
			}
		},
		"handlers.UserProfile": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"first_name": {
					"type": "string"
				},
				"last_name": {
					"type": "string"
				},
				"email": {
					"type": "string"
				},
				"phone": {
					"type": "string"
				},
				"country_code": {
					"type": "string"
				},
				"country": {
					"type": "string"
				},
				"email_verified": {
					"type": "boolean"
				},
				"created_at": {
					"type": "string"
				}
			}
		},
		"handlers.ForgetPasswordRequest": {
			"type": "object",
			"required": [
				"email"
			],
			"properties": {
				"email": {
					"type": "string"
				}
			}
		},
		"handlers.ResetPasswordRequest": {
			"type": "object",
			"required": [
				"new_password",
				"token"
			],
			"properties": {
				"token": {
					"type": "string"
				},
				"new_password": {
					"type": "string",
					"maxLength": 128,
					"minLength": 8
				}
			}
		},
		"handlers.ResetFormResponse": {
			"type": "object",
			"properties": {
				"valid": {
					"type": "boolean"
				}
			}
		},
		"handlers.OTPRequest": {
			"type": "object",
			"properties": {
				"phone": {
					"type": "string"
				}
			}
		},
		"handlers.OTPResponse": {
			"type": "object",
			"properties": {
				"message": {
					"type": "string"
				},
				"token": {
					"type": "string"
				}
			}
		},
		"handlers.VerifyOTPRequest": {
			"type": "object",
			"required": [
				"code",
				"token"
			],
			"properties": {
				"token": {
					"type": "string"
				},
				"code": {
					"type": "string"
				}
			}
		},
		"handlers.VerifyOTPResponse": {
			"type": "object",
			"properties": {
				"message": {
					"type": "string"
				},
				"valid": {
					"type": "boolean"
				}
			}
		},
		"handlers.HealthResponse": {
			"type": "object",
			"properties": {
				"status": {
					"type": "string"
				},
				"started_at": {
					"type": "string"
				},
				"timestamp": {
					"type": "string"
				}
			}
		},
		"handlers.ReadyResponse": {
			"type": "object",
			"properties": {
				"status": {
					"type": "string"
				},
				"checks": {
					"type": "object",
					"additionalProperties": {
						"type": "string"
					}
				},
				"timestamp": {
					"type": "string"
				}
			}
		},
		"handlers.FilterStatsResponse": {
			"type": "object",
			"properties": {
				"filters": {
					"type": "array",
					"items": {
						"$ref": "#/definitions/bloom.FilterStats"
					}
				}
			}
		}
	},
	"securityDefinitions": {
		"Bearer": {
			"description": "Session token, prefixed with \"Bearer \".",
			"type": "apiKey",
			"name": "Authorization",
			"in": "header"
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Realm Auth Service API",
	Description:      "Account lifecycle, session tokens and one-time codes for the User1 and User2 realms.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
