package preview

// BindingName is the global function a host backend exposes to receive
// diagnostic messages. When it is missing the shim posts to the parent frame.
const BindingName = "__fiestaBridge"

// ChannelTag marks diagnostic messages on the wire.
const ChannelTag = "CONSOLE_LOG"

const shimSource = `(function () {
  var TAG = "CONSOLE_LOG";
  function send(logType, message) {
    var msg = { type: TAG, logType: logType, message: message };
    try {
      if (typeof window.__fiestaBridge === "function") {
        window.__fiestaBridge(JSON.stringify(msg));
      } else if (window.parent && window.parent !== window) {
        window.parent.postMessage(msg, "*");
      }
    } catch (e) {}
  }
  function format(arg) {
    if (arg instanceof Error) return arg.stack || arg.message || String(arg);
    if (arg !== null && typeof arg === "object") {
      try { return JSON.stringify(arg); } catch (e) { return String(arg); }
    }
    return String(arg);
  }
  function wrap(name, logType) {
    var original = console[name];
    console[name] = function () {
      var args = Array.prototype.slice.call(arguments);
      if (typeof original === "function") original.apply(console, args);
      send(logType, args.map(format).join(" "));
    };
  }
  wrap("log", "info");
  wrap("warn", "warn");
  wrap("error", "error");
  window.onerror = function (message, source, line) {
    send("error", message + " (line " + line + ")");
    return true;
  };
  window.addEventListener("unhandledrejection", function (event) {
    send("error", "Unhandled promise rejection: " + format(event.reason));
  });
})();`

// Shim returns the instrumentation injected ahead of user code. Its output
// never varies.
func Shim() string {
	return shimSource
}
