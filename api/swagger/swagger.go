package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "KRS Admission API",
        "description": "Course registration admission control: eligibility windows, schedule conflicts and a priority admission queue.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {
            "name": "Registration Periods",
            "description": "Periods, student windows and eligibility"
        },
        {
            "name": "Schedules",
            "description": "Conflict detection and schedule optimisation"
        },
        {
            "name": "Registrations",
            "description": "Admission queue for enrolment and withdrawal"
        },
        {
            "name": "Observability",
            "description": "Metrics"
        }
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": [
                    "Observability"
                ],
                "summary": "Prometheus metrics",
                "produces": [
                    "text/plain"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": [
                    "Observability"
                ],
                "summary": "Cache, request and admission queue summary",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/registration-periods": {
            "get": {
                "tags": [
                    "Registration Periods"
                ],
                "summary": "List registration periods",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Registration Periods"
                ],
                "summary": "Create a registration period",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreatePeriodRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/registration-periods/refresh": {
            "post": {
                "tags": [
                    "Registration Periods"
                ],
                "summary": "Recompute period statuses from the clock",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/registration-periods/{id}": {
            "get": {
                "tags": [
                    "Registration Periods"
                ],
                "summary": "Get a registration period",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "put": {
                "tags": [
                    "Registration Periods"
                ],
                "summary": "Update a registration period",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdatePeriodRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Registration Periods"
                ],
                "summary": "Delete a registration period and its windows",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                }
            }
        },
        "/api/v1/registration-periods/{id}/windows": {
            "get": {
                "tags": [
                    "Registration Periods"
                ],
                "summary": "List windows of a period",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "student_id",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Registration Periods"
                ],
                "summary": "Open a registration window for a student",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateWindowRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/registration-periods/{id}/windows/{windowId}": {
            "delete": {
                "tags": [
                    "Registration Periods"
                ],
                "summary": "Delete a registration window",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "windowId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                }
            }
        },
        "/api/v1/eligibility": {
            "get": {
                "tags": [
                    "Registration Periods"
                ],
                "summary": "Check whether a student may register now",
                "parameters": [
                    {
                        "name": "student_id",
                        "in": "query",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "course_group_id",
                        "in": "query",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/sections": {
            "get": {
                "tags": [
                    "Sections"
                ],
                "summary": "List the sections of a registration period",
                "parameters": [
                    {
                        "type": "string",
                        "name": "period_id",
                        "in": "query",
                        "required": true
                    },
                    {
                        "type": "string",
                        "name": "course_id",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "put": {
                "tags": [
                    "Sections"
                ],
                "summary": "Create or update class sections",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpsertSectionsRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/schedules/conflicts": {
            "post": {
                "tags": [
                    "Schedules"
                ],
                "summary": "Detect time conflicts",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ConflictCheckRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/schedules/daily": {
            "post": {
                "tags": [
                    "Schedules"
                ],
                "summary": "Bucket classes by weekday with breaks",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ClassSetRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/schedules/balance": {
            "post": {
                "tags": [
                    "Schedules"
                ],
                "summary": "Validate weekly load balance",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ClassSetRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/schedules/quality": {
            "post": {
                "tags": [
                    "Schedules"
                ],
                "summary": "Score a schedule between 0 and 100",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ClassSetRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/schedules/alternatives": {
            "post": {
                "tags": [
                    "Schedules"
                ],
                "summary": "Suggest up to three balanced alternatives",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AlternativesRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/registrations": {
            "post": {
                "tags": [
                    "Registrations"
                ],
                "summary": "Submit a registration",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RegistrationRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "202": {
                        "description": "Accepted",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/registrations/drop": {
            "post": {
                "tags": [
                    "Registrations"
                ],
                "summary": "Withdraw from classes",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/DropRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "202": {
                        "description": "Accepted",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/registrations/queue/stats": {
            "get": {
                "tags": [
                    "Registrations"
                ],
                "summary": "Admission queue statistics",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/registrations/queue/config": {
            "put": {
                "tags": [
                    "Registrations"
                ],
                "summary": "Adjust admission queue limits",
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/QueueConfigRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/registrations/queue/{id}": {
            "delete": {
                "tags": [
                    "Registrations"
                ],
                "summary": "Cancel a pending registration",
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                }
            }
        }
    },
    "definitions": {
        "TimeSlot": {
            "type": "object",
            "properties": {
                "day_of_week": {
                    "type": "integer",
                    "minimum": 0,
                    "maximum": 6
                },
                "start_time": {
                    "type": "string",
                    "example": "08:00"
                },
                "end_time": {
                    "type": "string",
                    "example": "09:40"
                }
            }
        },
        "ScheduledClass": {
            "type": "object",
            "required": [
                "class_id",
                "course_id",
                "slots"
            ],
            "properties": {
                "class_id": {
                    "type": "string"
                },
                "course_id": {
                    "type": "string"
                },
                "room_id": {
                    "type": "string"
                },
                "building_id": {
                    "type": "string"
                },
                "credits": {
                    "type": "integer"
                },
                "slots": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/TimeSlot"
                    }
                }
            }
        },
        "CreatePeriodRequest": {
            "type": "object",
            "required": [
                "name",
                "start_time",
                "end_time",
                "eligible_groups"
            ],
            "properties": {
                "name": {
                    "type": "string"
                },
                "start_time": {
                    "type": "string",
                    "format": "date-time"
                },
                "end_time": {
                    "type": "string",
                    "format": "date-time"
                },
                "eligible_groups": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "max_concurrent_windows_per_student": {
                    "type": "integer"
                }
            }
        },
        "UpdatePeriodRequest": {
            "type": "object",
            "properties": {
                "name": {
                    "type": "string"
                },
                "start_time": {
                    "type": "string",
                    "format": "date-time"
                },
                "end_time": {
                    "type": "string",
                    "format": "date-time"
                },
                "eligible_groups": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "max_concurrent_windows_per_student": {
                    "type": "integer"
                }
            }
        },
        "CreateWindowRequest": {
            "type": "object",
            "required": [
                "student_id",
                "start_time",
                "end_time"
            ],
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "start_time": {
                    "type": "string",
                    "format": "date-time"
                },
                "end_time": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "SectionRequest": {
            "type": "object",
            "required": [
                "id",
                "course_id",
                "period_id",
                "capacity",
                "slots"
            ],
            "properties": {
                "id": {
                    "type": "string"
                },
                "course_id": {
                    "type": "string"
                },
                "period_id": {
                    "type": "string"
                },
                "room_id": {
                    "type": "string"
                },
                "building_id": {
                    "type": "string"
                },
                "credits": {
                    "type": "integer"
                },
                "capacity": {
                    "type": "integer",
                    "minimum": 1
                },
                "slots": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/TimeSlot"
                    }
                }
            }
        },
        "UpsertSectionsRequest": {
            "type": "object",
            "required": [
                "sections"
            ],
            "properties": {
                "sections": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/SectionRequest"
                    }
                }
            }
        },
        "ClassSetRequest": {
            "type": "object",
            "required": [
                "classes"
            ],
            "properties": {
                "classes": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ScheduledClass"
                    }
                }
            }
        },
        "ConflictCheckRequest": {
            "type": "object",
            "required": [
                "proposed"
            ],
            "properties": {
                "proposed": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ScheduledClass"
                    }
                },
                "existing": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ScheduledClass"
                    }
                }
            }
        },
        "AlternativesRequest": {
            "type": "object",
            "required": [
                "period_id",
                "proposed"
            ],
            "properties": {
                "period_id": {
                    "type": "string"
                },
                "proposed": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ScheduledClass"
                    }
                },
                "existing": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ScheduledClass"
                    }
                }
            }
        },
        "RegistrationRequest": {
            "type": "object",
            "required": [
                "student_id",
                "course_group_id",
                "proposed"
            ],
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "course_group_id": {
                    "type": "string"
                },
                "proposed": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ScheduledClass"
                    }
                },
                "existing": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ScheduledClass"
                    }
                },
                "priority": {
                    "type": "integer"
                },
                "wait": {
                    "type": "boolean"
                }
            }
        },
        "DropRequest": {
            "type": "object",
            "required": [
                "student_id",
                "course_group_id",
                "class_ids"
            ],
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "course_group_id": {
                    "type": "string"
                },
                "class_ids": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "priority": {
                    "type": "integer"
                },
                "wait": {
                    "type": "boolean"
                }
            }
        },
        "QueueConfigRequest": {
            "type": "object",
            "properties": {
                "max_concurrent": {
                    "type": "integer"
                },
                "timeout": {
                    "type": "string",
                    "example": "30s"
                },
                "max_attempts": {
                    "type": "integer"
                },
                "retry_delay": {
                    "type": "string",
                    "example": "1s"
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                },
                "details": {
                    "type": "object"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "meta": {
                    "type": "object"
                }
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
