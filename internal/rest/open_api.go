package rest

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/ghodss/yaml"
	"github.com/go-chi/chi/v5"
)

// NewOpenAPI3 instantiates the OpenAPI specification for this service.
func NewOpenAPI3() openapi3.T {
	swagger := openapi3.T{
		OpenAPI: "3.0.0",
		Info: &openapi3.Info{
			Title:       "Todo Sync API",
			Description: "REST APIs used for interacting with the Todo Sync Service",
			Version:     "0.0.0",
			License: &openapi3.License{
				Name: "MIT",
				URL:  "https://opensource.org/licenses/MIT",
			},
		},
		Servers: openapi3.Servers{
			&openapi3.Server{
				Description: "Local development",
				URL:         "http://127.0.0.1:9234",
			},
		},
	}

	todoRef := openapi3.NewSchemaRef("#/components/schemas/Todo", nil)

	todoArray := openapi3.NewArraySchema()
	todoArray.Items = todoRef

	todosRef := openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("todos", todoArray))

	swagger.Components.Schemas = openapi3.Schemas{
		"Priority": openapi3.NewSchemaRef("",
			openapi3.NewStringSchema().
				WithEnum("low", "medium", "high")),
		"Todo": openapi3.NewSchemaRef("",
			openapi3.NewObjectSchema().
				WithProperty("id", openapi3.NewUUIDSchema()).
				WithProperty("task", openapi3.NewStringSchema().WithMinLength(1)).
				WithProperty("description", openapi3.NewStringSchema().WithNullable()).
				WithPropertyRef("priority", &openapi3.SchemaRef{Ref: "#/components/schemas/Priority"}).
				WithProperty("is_completed", openapi3.NewBoolSchema()).
				WithProperty("image_url", openapi3.NewStringSchema().WithNullable()).
				WithProperty("created_at", openapi3.NewDateTimeSchema()).
				WithProperty("user_id", openapi3.NewUUIDSchema())),
		"Session": openapi3.NewSchemaRef("",
			openapi3.NewObjectSchema().
				WithProperty("token", openapi3.NewStringSchema()).
				WithProperty("user_id", openapi3.NewUUIDSchema()).
				WithProperty("email", openapi3.NewStringSchema()).
				WithProperty("expires_at", openapi3.NewDateTimeSchema())),
	}

	swagger.Components.RequestBodies = openapi3.RequestBodies{
		"CreateTodosRequest": &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithDescription("Request used for creating a todo.").
				WithRequired(true).
				WithJSONSchema(openapi3.NewSchema().
					WithProperty("task", openapi3.NewStringSchema().WithMinLength(1)).
					WithProperty("description", openapi3.NewStringSchema()).
					WithPropertyRef("priority", &openapi3.SchemaRef{Ref: "#/components/schemas/Priority"}).
					WithProperty("image_url", openapi3.NewStringSchema())),
		},
		"UpdateTodosRequest": &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithDescription("Request used for partially updating a todo, omitted fields are left untouched.").
				WithRequired(true).
				WithJSONSchema(openapi3.NewSchema().
					WithProperty("task", openapi3.NewStringSchema().WithMinLength(1)).
					WithProperty("description", openapi3.NewStringSchema().WithNullable()).
					WithPropertyRef("priority", &openapi3.SchemaRef{Ref: "#/components/schemas/Priority"}).
					WithProperty("is_completed", openapi3.NewBoolSchema()).
					WithProperty("image_url", openapi3.NewStringSchema().WithNullable())),
		},
		"CredentialsRequest": &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchema(openapi3.NewSchema().
					WithProperty("email", openapi3.NewStringSchema()).
					WithProperty("password", openapi3.NewStringSchema().WithMinLength(6))),
		},
	}

	swagger.Components.Responses = openapi3.Responses{
		"ErrorResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Response when errors happen.").
				WithContent(openapi3.NewContentWithJSONSchema(openapi3.NewSchema().
					WithProperty("error", openapi3.NewStringSchema()))),
		},
		"TodosResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Collection of todos, newest first.").
				WithContent(openapi3.NewContentWithJSONSchemaRef(todosRef)),
		},
		"ReadTodoResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Response returned back after searching one todo.").
				WithContent(openapi3.NewContentWithJSONSchema(openapi3.NewSchema().
					WithPropertyRef("todo", todoRef))),
		},
		"DeleteTodoResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Response returned back after deleting a todo.").
				WithContent(openapi3.NewContentWithJSONSchema(openapi3.NewSchema().
					WithProperty("success", openapi3.NewBoolSchema()))),
		},
		"SessionResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Established session.").
				WithContent(openapi3.NewContentWithJSONSchemaRef(&openapi3.SchemaRef{Ref: "#/components/schemas/Session"})),
		},
	}

	errorResponse := &openapi3.ResponseRef{Ref: "#/components/responses/ErrorResponse"}
	idParameter := &openapi3.ParameterRef{Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewUUIDSchema())}

	swagger.Paths = openapi3.Paths{
		"/todos": &openapi3.PathItem{
			Get: &openapi3.Operation{
				OperationID: "GetTodos",
				Responses: openapi3.Responses{
					"200": &openapi3.ResponseRef{Ref: "#/components/responses/TodosResponse"},
					"401": errorResponse,
					"500": errorResponse,
				},
			},
			Post: &openapi3.Operation{
				OperationID: "AddTodo",
				RequestBody: &openapi3.RequestBodyRef{Ref: "#/components/requestBodies/CreateTodosRequest"},
				Responses: openapi3.Responses{
					"201": &openapi3.ResponseRef{Ref: "#/components/responses/TodosResponse"},
					"400": errorResponse,
					"401": errorResponse,
					"500": errorResponse,
				},
			},
		},
		"/todos/{id}": &openapi3.PathItem{
			Get: &openapi3.Operation{
				OperationID: "ReadTodo",
				Parameters:  openapi3.Parameters{idParameter},
				Responses: openapi3.Responses{
					"200": &openapi3.ResponseRef{Ref: "#/components/responses/ReadTodoResponse"},
					"401": errorResponse,
					"404": errorResponse,
					"500": errorResponse,
				},
			},
			Patch: &openapi3.Operation{
				OperationID: "UpdateTodo",
				Parameters:  openapi3.Parameters{idParameter},
				RequestBody: &openapi3.RequestBodyRef{Ref: "#/components/requestBodies/UpdateTodosRequest"},
				Responses: openapi3.Responses{
					"200": &openapi3.ResponseRef{Ref: "#/components/responses/TodosResponse"},
					"400": errorResponse,
					"401": errorResponse,
					"500": errorResponse,
				},
			},
			Delete: &openapi3.Operation{
				OperationID: "DeleteTodo",
				Parameters:  openapi3.Parameters{idParameter},
				Responses: openapi3.Responses{
					"200": &openapi3.ResponseRef{Ref: "#/components/responses/DeleteTodoResponse"},
					"401": errorResponse,
					"500": errorResponse,
				},
			},
		},
		"/todos/search": &openapi3.PathItem{
			Get: &openapi3.Operation{
				OperationID: "SearchTodos",
				Parameters: openapi3.Parameters{
					&openapi3.ParameterRef{Value: openapi3.NewQueryParameter("q").WithSchema(openapi3.NewStringSchema())},
					&openapi3.ParameterRef{Value: openapi3.NewQueryParameter("priority").
						WithSchema(openapi3.NewStringSchema().WithEnum("low", "medium", "high"))},
					&openapi3.ParameterRef{Value: openapi3.NewQueryParameter("is_completed").WithSchema(openapi3.NewBoolSchema())},
					&openapi3.ParameterRef{Value: openapi3.NewQueryParameter("from").WithSchema(openapi3.NewInt64Schema())},
					&openapi3.ParameterRef{Value: openapi3.NewQueryParameter("size").WithSchema(openapi3.NewInt64Schema())},
				},
				Responses: openapi3.Responses{
					"200": &openapi3.ResponseRef{Ref: "#/components/responses/TodosResponse"},
					"400": errorResponse,
					"401": errorResponse,
					"500": errorResponse,
				},
			},
		},
		"/auth/signup": &openapi3.PathItem{
			Post: &openapi3.Operation{
				OperationID: "SignUp",
				RequestBody: &openapi3.RequestBodyRef{Ref: "#/components/requestBodies/CredentialsRequest"},
				Responses: openapi3.Responses{
					"201": &openapi3.ResponseRef{Ref: "#/components/responses/SessionResponse"},
					"400": errorResponse,
					"500": errorResponse,
				},
			},
		},
		"/auth/signin": &openapi3.PathItem{
			Post: &openapi3.Operation{
				OperationID: "SignIn",
				RequestBody: &openapi3.RequestBodyRef{Ref: "#/components/requestBodies/CredentialsRequest"},
				Responses: openapi3.Responses{
					"200": &openapi3.ResponseRef{Ref: "#/components/responses/SessionResponse"},
					"401": errorResponse,
					"500": errorResponse,
				},
			},
		},
	}

	return swagger
}

// RegisterOpenAPI serves the OpenAPI document as JSON and YAML.
func RegisterOpenAPI(r chi.Router) {
	swagger := NewOpenAPI3()

	r.Get("/openapi3.json", func(w http.ResponseWriter, r *http.Request) {
		renderResponse(w, &swagger, http.StatusOK)
	})

	r.Get("/openapi3.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")

		data, _ := yaml.Marshal(&swagger)

		w.WriteHeader(http.StatusOK)

		_, _ = w.Write(data)
	})
}
