package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"

	"docvault/docvault/services"

	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method      string
	endpoint    string
	headers     map[string]string
	json        interface{}
	body        io.Reader
	contentType string
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Multipart(body io.Reader, contentType string) *httpTestRequest {
	r.body = body
	r.contentType = contentType
	return r
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("request returned status %d, content '%v'", e.StatusCode, e.Body)
}

// statusOf returns the http status carried by an error from Do, or 0 if the
// error is not an http failure.
func statusOf(err error) int {
	if httpErr, ok := err.(*httpError); ok {
		return httpErr.StatusCode
	}
	return 0
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Status     bool            `json:"status"`
	Error      string          `json:"error,omitempty"`
}

func (r *httpTestRequest) send() (*http.Response, string, error) {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return nil, "", fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
		r.contentType = "application/json"
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}

	w := httptest.NewRecorder()
	r.api.ServeHTTP(w, req)

	return w.Result(), w.Body.String(), nil
}

// response envelope data will be parsed into result, passing nil indicates
// that no result is expected.
func (r *httpTestRequest) Do(result interface{}) error {
	res, body, err := r.send()
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return &httpError{StatusCode: res.StatusCode, Body: body}
	}

	if result != nil {
		var env envelope
		if err := json.Unmarshal([]byte(body), &env); err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("error parsing %v response data from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

// DoRaw returns the raw response body, for endpoints that stream content
// instead of writing a json envelope.
func (r *httpTestRequest) DoRaw() ([]byte, error) {
	res, body, err := r.send()
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, &httpError{StatusCode: res.StatusCode, Body: body}
	}

	return []byte(body), nil
}

type client struct {
	api       chi.Router
	authToken string
	userId    string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Put(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "PUT", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) signup(firstname, lastname, email, password string) error {
	body := map[string]string{
		"firstname": firstname, "lastname": lastname, "email": email, "password": password,
	}
	return c.Post("/user/signup").Json(body).Do(nil)
}

type loginData struct {
	User  services.UserInfo `json:"user"`
	Token string            `json:"token"`
}

func (c *client) login(email, password string) (loginData, error) {
	body := map[string]string{
		"login_source": "email", "email": email, "password": password,
	}

	var res loginData
	err := c.Post("/user/login").Json(body).Do(&res)
	if err != nil {
		return loginData{}, err
	}

	c.authToken = res.Token
	c.userId = res.User.Id.String()

	return res, nil
}

func (c *client) loginFederated(source, socialToken string) (loginData, error) {
	body := map[string]string{
		"login_source": source, "social_token": socialToken,
	}

	var res loginData
	err := c.Post("/user/login").Json(body).Do(&res)
	if err != nil {
		return loginData{}, err
	}

	c.authToken = res.Token
	c.userId = res.User.Id.String()

	return res, nil
}

func (c *client) profile() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/user/profile").Do(&res)
	return res, err
}

type userList struct {
	List     []services.UserInfo `json:"list"`
	Metadata listMetadata        `json:"metadata"`
}

type listMetadata struct {
	TotalCount int64 `json:"totalCount"`
	TotalPages int64 `json:"totalPages"`
}

func (c *client) listUsers(page, limit int) (userList, error) {
	var res userList
	err := c.Get(fmt.Sprintf("/user/?page=%d&limit=%d", page, limit)).Do(&res)
	return res, err
}

func (c *client) getUser(userId string) (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get(fmt.Sprintf("/user/%v", userId)).Do(&res)
	return res, err
}

func (c *client) updateUser(userId string, fields map[string]string) (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Put(fmt.Sprintf("/user/%v", userId)).Json(fields).Do(&res)
	return res, err
}

func (c *client) deleteUser(userId string) error {
	return c.Delete(fmt.Sprintf("/user/%v", userId)).Do(nil)
}

func (c *client) uploadDocument(documentType, filename string, content []byte) (services.DocumentInfo, error) {
	body := new(bytes.Buffer)
	form := multipart.NewWriter(body)

	if err := form.WriteField("document_type", documentType); err != nil {
		return services.DocumentInfo{}, err
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return services.DocumentInfo{}, err
	}
	if _, err := part.Write(content); err != nil {
		return services.DocumentInfo{}, err
	}
	if err := form.Close(); err != nil {
		return services.DocumentInfo{}, err
	}

	var res services.DocumentInfo
	err = c.Post("/document/").Multipart(body, form.FormDataContentType()).Do(&res)
	return res, err
}

type documentList struct {
	List     []services.DocumentInfo `json:"list"`
	Metadata listMetadata            `json:"metadata"`
}

func (c *client) listDocuments(page, limit int, documentType string) (documentList, error) {
	endpoint := fmt.Sprintf("/document/?page=%d&limit=%d", page, limit)
	if documentType != "" {
		endpoint += "&document_type=" + url.QueryEscape(documentType)
	}

	var res documentList
	err := c.Get(endpoint).Do(&res)
	return res, err
}

func (c *client) deleteDocument(documentId string) error {
	return c.Delete(fmt.Sprintf("/document/?document_id=%v", documentId)).Do(nil)
}

func (c *client) downloadDocument(filepath string) ([]byte, error) {
	return c.Get("/document/download?filepath=" + url.QueryEscape(filepath)).DoRaw()
}

type signedUrl struct {
	Url       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}

func (c *client) documentUrl(filepath string) (signedUrl, error) {
	var res signedUrl
	err := c.Get("/document/url?filepath=" + url.QueryEscape(filepath)).Do(&res)
	return res, err
}
